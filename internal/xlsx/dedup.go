package xlsx

import "strconv"

// DedupHeaders renames repeated header texts left to right: the first
// occurrence is kept, later ones get ".1", ".2", ... with a counter per
// distinct text.
func DedupHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		n, ok := seen[h]
		if !ok {
			seen[h] = 0
			out[i] = h
			continue
		}
		n++
		seen[h] = n
		out[i] = h + "." + strconv.Itoa(n)
	}
	return out
}
