package dedup

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	tagPattern   = regexp.MustCompile(`[#@][\p{L}\p{N}_]+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeCaption lowercases text and strips URLs, hashtags, mentions and
// punctuation, collapsing whitespace.
func NormalizeCaption(text string) string {
	s := strings.ToLower(text)
	s = urlPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func tokenSet(norm string) map[string]struct{} {
	fields := strings.Fields(norm)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// CaptionSimilarity is the Jaccard similarity of the token sets of two
// already-normalised captions. Empty captions are never similar.
func CaptionSimilarity(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}
