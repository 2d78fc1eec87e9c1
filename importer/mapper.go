package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Mapping is the result of guessing which canonical field each detected
// column header represents. Headers absent from both maps are ignored.
// The caller may override Columns freely before committing an import.
type Mapping struct {
	// Columns maps a header to the single field it was assigned.
	Columns map[string]Field
	// Ambiguous lists headers whose best matches tie across two or more
	// fields. They are left unmapped and require human review.
	Ambiguous map[string][]Field
}

// MapColumns guesses a canonical field for each header. Matching is
// accent and case insensitive, bidirectional substring containment
// against the alias table, with the longest matching alias winning.
// A header whose longest matches tie across distinct fields is flagged
// ambiguous instead of silently assigned. Each field is assigned to at
// most one header, first header wins. Pure and deterministic: the same
// headers always produce the same mapping.
func MapColumns(headers []string) Mapping {
	mapping := Mapping{
		Columns:   make(map[string]Field, len(headers)),
		Ambiguous: make(map[string][]Field),
	}
	used := make(map[Field]bool)

	for _, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}

		best, tied := bestMatches(normalized)
		switch {
		case len(best) == 0:
			// Unmapped, surfaced to the user as ignorable.
		case tied:
			mapping.Ambiguous[header] = best
		default:
			field := best[0]
			if !used[field] {
				mapping.Columns[header] = field
				used[field] = true
			}
		}
	}

	return mapping
}

// bestMatches scores every field against the normalized header and
// returns the field(s) holding the longest matching alias. tied is true
// when two or more distinct fields share that longest length.
func bestMatches(normalized string) (fields []Field, tied bool) {
	bestLen := 0
	for _, field := range fieldOrder {
		fieldBest := 0
		for _, alias := range fieldAliases[field] {
			na := normalizeHeader(alias)
			if na == "" {
				continue
			}
			if strings.Contains(normalized, na) || strings.Contains(na, normalized) {
				if len(na) > fieldBest {
					fieldBest = len(na)
				}
			}
		}
		if fieldBest == 0 {
			continue
		}
		switch {
		case fieldBest > bestLen:
			bestLen = fieldBest
			fields = []Field{field}
		case fieldBest == bestLen:
			fields = append(fields, field)
		}
	}
	return fields, len(fields) > 1
}

// normalizeHeader lowercases, trims, strips diacritics, and removes
// whitespace, underscores, and hyphens so "Descrição" and "descricao"
// compare equal.
func normalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(header))
	s = stripDiacritics(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// stripDiacritics decomposes to NFD and drops combining marks so accented
// characters fold to their base letter.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var result strings.Builder
	result.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}
