package convergence

// Delta measures how much a document changed between two consecutive
// versions, as a bounded scalar in [0,1]. This implementation uses the
// symmetric character-length ratio |len(b)-len(a)| / max(len(a), len(b)),
// falling back to a per-position mismatch ratio when both versions have the
// same length (otherwise equal-length rewrites would be indistinguishable
// from no change at all). It is O(n) and coarse rather than a true edit
// distance — an accepted tradeoff against Levenshtein, documented in
// DESIGN.md.
//
// Properties guaranteed: Delta(a, a) == 0 for any a; Delta("", b) == 1 for
// any non-empty b and symmetrically Delta(a, "") == 1 for any non-empty a;
// Delta(a, b) == Delta(b, a); and for pure insertion/deletion the result
// grows monotonically with the size of the change.
func Delta(a, b string) float64 {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la != lb {
		diff := la - lb
		if diff < 0 {
			diff = -diff
		}
		denom := la
		if lb > denom {
			denom = lb
		}
		return float64(diff) / float64(denom)
	}

	// Equal length but different content: the length ratio alone can't see
	// this, so fall back to a per-position difference ratio. Still bounded
	// in [0,1] and zero only when every position matches, i.e. a == b.
	if la == 0 {
		return 0
	}
	mismatches := 0
	for i := range ra {
		if ra[i] != rb[i] {
			mismatches++
		}
	}
	return float64(mismatches) / float64(la)
}
