package recipe

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// String renders the ingredient as "quantity unit name".
func (i Ingredient) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Quantity, i.Unit, i.Name} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Recipe is a recipe as served by the backend.
type Recipe struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	PrepMinutes int          `json:"prepTime,omitempty"`
	Servings    int          `json:"servings,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
	AuthorID    string       `json:"authorId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
}

// PrepTime formats PrepMinutes as e.g. "1h 15m". Empty when unknown.
func (r Recipe) PrepTime() string {
	if r.PrepMinutes <= 0 {
		return ""
	}
	h, m := r.PrepMinutes/60, r.PrepMinutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// Summary returns the description as plain text cut to at most maxRunes runes.
func (r Recipe) Summary(maxRunes int) string {
	text := PlainText(r.Description)
	runes := []rune(text)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxRunes-1])) + "…"
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
// Input that fails to parse is returned trimmed.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style, iframe").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	doc.Find("br, p, li, h1, h2, h3").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
