package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reNonAlnum   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reMultiSpace = regexp.MustCompile(`\s+`)
)

// stripDiacritics removes combining marks after NFD decomposition.
func stripDiacritics(s string) string {
	decomp := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomp))
	for _, r := range decomp {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// foldTitle is the key for the exact tiers: case-insensitive, width-folded, otherwise verbatim.
func foldTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFKC.String(s))
}

// normalizeTitle is the key for the fuzzy tier.
func normalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// NFKC folds full-width and compatibility forms
	s = norm.NFKC.String(s)
	s = stripDiacritics(s)
	s = strings.ToLower(s)

	for _, r := range []string{
		"@comic",
		"the comic",
		"(comic)",
		"(manga)",
	} {
		s = strings.ReplaceAll(s, r, "")
	}

	s = reNonAlnum.ReplaceAllString(s, " ")

	// romanization variants of the same particle
	padded := " " + s + " "
	padded = strings.ReplaceAll(padded, " wo ", " o ")
	s = strings.TrimSpace(padded)

	tokens := strings.Fields(s)
	out := tokens[:0]
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == "node" {
			out = append(out, "no")
			continue
		}
		if tok == "no" && i+1 < len(tokens) && tokens[i+1] == "de" {
			out = append(out, "no")
			i++
			continue
		}
		out = append(out, tok)
	}

	s = strings.Join(out, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SearchQueries returns the queries tried against a catalog search for one title, most specific first.
func SearchQueries(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	queries := []string{title}
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		for _, seen := range queries {
			if seen == q {
				return
			}
		}
		queries = append(queries, q)
	}
	add(strings.ReplaceAll(title, ":", ""))
	if i := strings.Index(title, ":"); i > 0 {
		add(title[:i])
	}
	return queries
}
