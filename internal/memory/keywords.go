package memory

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

var stopWords = toSet(strings.Fields(`
	i me my myself we our ours ourselves you your yours yourself yourselves
	he him his himself she her hers herself it its itself they them their
	theirs themselves what which who whom this that these those am is are
	was were be been being have has had having do does did doing a an the
	and but if or because as until while of at by for with through during
	before after above below up down in out on off over under again further
	then once`))

func toSet(words []string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// Keywords lower-cases text, strips punctuation, drops stop words and words of
// two characters or fewer, and returns the remaining unique words sorted.
func Keywords(text string) []string {
	clean := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(clean) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Jaccard returns |a∩b| / |a∪b| for two sorted unique word lists, 0 if either is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
