// Package view renders the stores as plain text for the CLI and the bot.
package view

import (
	"fmt"
	"io"

	"one-plate/internal/errs"
	"one-plate/internal/metrics"
	"one-plate/internal/recipe"
	"one-plate/internal/shopping"
)

// SummaryRunes caps recipe descriptions in listings.
const SummaryRunes = 80

// Items renders one line per item.
func Items(w io.Writer, items []shopping.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Your shopping list is empty.")
		return
	}
	for _, it := range items {
		item(w, "", it)
	}
}

// Groups renders items under the title of the recipe they came from.
func Groups(w io.Writer, groups []shopping.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "Your shopping list is empty.")
		return
	}
	for _, g := range groups {
		title := g.RecipeTitle
		switch {
		case g.RecipeID == "":
			title = "Other items"
		case title == "":
			title = "Recipe " + g.RecipeID
		}
		fmt.Fprintln(w, title)
		for _, it := range g.Items {
			item(w, "  ", it)
		}
	}
}

func item(w io.Writer, indent string, it shopping.Item) {
	box := "[ ]"
	if it.IsPurchased {
		box = "[x]"
	}
	ref := it.ID
	if it.IsTemporary() {
		ref = "saving"
	}
	fmt.Fprintf(w, "%s%s %s  (%s)\n", indent, box, it.Label(), ref)
}

// Stats renders the list counters.
func Stats(w io.Writer, s shopping.Stats) {
	fmt.Fprintf(w, "%d items: %d purchased, %d pending\n", s.Total, s.Purchased, s.Pending)
}

// Favorites renders the favorite recipes with a short description.
func Favorites(w io.Writer, rs []recipe.Recipe) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "No favorite recipes yet.")
		return
	}
	for _, r := range rs {
		fmt.Fprintf(w, "* %s  (%s)", r.Title, r.ID)
		if prep := r.PrepTime(); prep != "" {
			fmt.Fprintf(w, "  %s", prep)
		}
		fmt.Fprintln(w)
		if s := r.Summary(SummaryRunes); s != "" {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}
}

// Batch renders the outcome of adding a recipe's ingredients.
func Batch(w io.Writer, title string, res shopping.BatchResult) {
	total := len(res.Added) + len(res.Failed)
	fmt.Fprintf(w, "Added %d of %d ingredients from %s.\n", len(res.Added), total, title)
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  failed: %s: %s\n", f.Ingredient, errs.UserMessage(f.Err))
	}
}

// Metrics renders the mutation outcome summary.
func Metrics(w io.Writer, rows []metrics.OpSummary) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No changes recorded.")
		return
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s/%s: %d confirmed, %d rolled back, avg %dms\n",
			r.Store, r.Op, r.Confirmed, r.RolledBack, r.AvgLatencyMS)
	}
}

// Health renders process and storage usage.
func Health(w io.Writer, h metrics.SysHealth) {
	fmt.Fprintf(w, "memory: %d MB alloc, %d MB sys, %d GC runs\n", h.AllocMB, h.SysMB, h.NumGC)
	fmt.Fprintf(w, "goroutines: %d\n", h.Goroutines)
	fmt.Fprintf(w, "data: %s\n", h.DataDiskSize)
}
