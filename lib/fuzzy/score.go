package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// process lowercases s, replaces everything that is not a letter or digit with
// a space and collapses whitespace.
func process(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func round(f float64) int {
	return int(math.Round(f))
}

// ratio is the share of characters the two strings have in common, in terms of
// their longest common subsequence.
func ratio(a, b string) int {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return round(200 * float64(lcs) / float64(la+lb))
}

// partialRatio is the best ratio between the shorter string and every window of
// the same length in the longer one.
func partialRatio(a, b string) int {
	short := []rune(a)
	long := []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}

	shortStr := string(short)
	best := 0
	for start := 0; start < len(long); start++ {
		end := min(start+len(short), len(long))
		r := ratio(shortStr, string(long[start:end]))
		if r > best {
			best = r
		}
		if best == 100 {
			break
		}
	}
	return best
}

type ratioFunc func(a, b string) int

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSortRatio(a, b string, fn ratioFunc) int {
	return fn(sortedTokens(a), sortedTokens(b))
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func tokenSetRatio(a, b string, fn ratioFunc) int {
	setA := tokenSet(a)
	setB := tokenSet(b)

	intersection := map[string]struct{}{}
	onlyA := map[string]struct{}{}
	onlyB := map[string]struct{}{}
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection[t] = struct{}{}
		} else {
			onlyA[t] = struct{}{}
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB[t] = struct{}{}
		}
	}

	sect := strings.Join(sortedKeys(intersection), " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(sortedKeys(onlyA), " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(sortedKeys(onlyB), " "))

	return max(
		fn(sect, combinedA),
		fn(sect, combinedB),
		fn(combinedA, combinedB),
	)
}

const (
	unbaseScale   = 0.95
	partialScale  = 0.90
	distantScale  = 0.60
	partialCutoff = 1.5
	distantCutoff = 8
)

// Score returns a 0-100 similarity between query and label.
//
// It is a weighted combination of a plain ratio, token sort and token set ratios.
// When one string is much longer than the other, partial (windowed) variants are
// used instead and discounted.
func Score(query, label string) int {
	a := process(query)
	b := process(label)
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}

	base := float64(ratio(a, b))
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	if lenRatio < partialCutoff {
		tsor := float64(tokenSortRatio(a, b, ratio)) * unbaseScale
		tser := float64(tokenSetRatio(a, b, ratio)) * unbaseScale
		return round(max(base, tsor, tser))
	}

	scale := partialScale
	if lenRatio > distantCutoff {
		scale = distantScale
	}
	partial := float64(partialRatio(a, b)) * scale
	ptsor := float64(tokenSortRatio(a, b, partialRatio)) * unbaseScale * scale
	ptser := float64(tokenSetRatio(a, b, partialRatio)) * unbaseScale * scale
	return round(max(base, partial, ptsor, ptser))
}
