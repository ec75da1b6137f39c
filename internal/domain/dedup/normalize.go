package dedup

import "strings"

const punctuationClass = "?!.,;:'\"()[]{}<>«»-–—_/\\*&^%$#@~`|+="

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"do": {}, "does": {}, "did": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "for": {},
	"it": {}, "this": {}, "that": {},
}

// normalizeText canonicalizes raw question text for embedding and
// comparison: lowercase, punctuation stripped, stopwords dropped, single
// spaces between tokens. Pure and idempotent.
func normalizeText(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, r := range lowered {
		if strings.ContainsRune(punctuationClass, r) {
			builder.WriteRune(' ')
			continue
		}
		builder.WriteRune(r)
	}
	fields := strings.Fields(builder.String())
	kept := fields[:0]
	for _, token := range fields {
		if _, skip := stopwords[token]; skip {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}
