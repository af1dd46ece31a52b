package grading

import (
	"strings"
	"unicode"
)

// normalize folds case, drops punctuation and collapses whitespace so near
// misses are compared on the words alone.
func normalize(s string) string {
	var b strings.Builder
	for _, w := range strings.FieldsFunc(s, unicode.IsSpace) {
		w = strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, w)
		if w == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}

// withinEdits reports whether a and b are at most k insertions, deletions
// or substitutions apart. Rows stop early once every cell exceeds k.
func withinEdits(a, b string, k int) bool {
	ar, br := []rune(a), []rune(b)
	if d := len(ar) - len(br); d > k || -d > k {
		return false
	}
	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		diag := row[0]
		row[0] = i
		best := row[0]
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			diag, row[j] = row[j], min(row[j]+1, row[j-1]+1, diag+cost)
			best = min(best, row[j])
		}
		if best > k {
			return false
		}
	}
	return row[len(br)] <= k
}
