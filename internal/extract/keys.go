package extract

import "strings"

// canonicalKey renames a top-level key that nearly matches a known field,
// e.g. "card_id_number" or "Card ID Numbr" to "Card ID Number".
func canonicalKey(key string, known []string) string {
	if name, ok := matchField(key, known); ok {
		return name
	}
	return key
}

func matchField(key string, known []string) (string, bool) {
	nk := normalizeKey(key)
	best, bestDist := "", -1
	for _, name := range known {
		nn := normalizeKey(name)
		if nk == nn {
			return name, true
		}
		d := LevenshteinDistance(nk, nn)
		if d <= maxKeyDistance(nn) && (bestDist < 0 || d < bestDist) {
			best, bestDist = name, d
		}
	}
	return best, bestDist >= 0
}

// maxKeyDistance allows one edit per eight runes, at least one.
func maxKeyDistance(name string) int {
	n := len([]rune(name)) / 8
	if n < 1 {
		return 1
	}
	return n
}

func normalizeKey(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// LevenshteinDistance calculates the minimum number of single-rune edits
// (insertions, deletions, or substitutions) required to change a into b.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	runesA := []rune(a)
	runesB := []rune(b)
	lenA := len(runesA)
	lenB := len(runesB)
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// two rows are enough
	prev := make([]int, lenB+1)
	curr := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prev[j] = j
	}
	for i := 1; i <= lenA; i++ {
		curr[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[lenB]
}
