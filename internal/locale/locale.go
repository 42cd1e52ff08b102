// Package locale picks the user's language among the ones the app ships.
package locale

import (
	"fmt"

	"golang.org/x/text/language"
)

// Supported lists the app's languages; the first one is the fallback.
var Supported = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
	language.Spanish,
}

var matcher = language.NewMatcher(Supported)

// Parse validates a BCP 47 tag such as "pt-BR".
func Parse(tag string) (language.Tag, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return language.Und, fmt.Errorf("invalid locale %q: %w", tag, err)
	}
	return t, nil
}

// Match returns the supported tag closest to the requested ones. Invalid or
// empty preferences yield the fallback.
func Match(preferred ...string) language.Tag {
	var tags []language.Tag
	for _, p := range preferred {
		if p == "" {
			continue
		}
		if parsed, _, err := language.ParseAcceptLanguage(p); err == nil {
			tags = append(tags, parsed...)
		}
	}
	_, i, _ := matcher.Match(tags...)
	return Supported[i]
}

// Resolve validates tag and maps it onto a supported locale. It fails only
// for tags that do not parse.
func Resolve(tag string) (string, error) {
	if _, err := Parse(tag); err != nil {
		return "", err
	}
	return Match(tag).String(), nil
}

// Names returns the supported tags as strings.
func Names() []string {
	out := make([]string, len(Supported))
	for i, t := range Supported {
		out[i] = t.String()
	}
	return out
}
