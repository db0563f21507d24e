package slices

// Flatten merges a slice of slices into a single slice, preserving order, such that the
// elements of s[i] precede those of s[i+1].
func Flatten[S ~[]E, E any](s []S) S {
	n := 0
	allNil := true
	for _, si := range s {
		n += len(si)
		allNil = allNil && si == nil
	}
	if allNil {
		return nil
	}
	rv := make(S, 0, n)
	for _, si := range s {
		rv = append(rv, si...)
	}
	return rv
}

// Map returns a new slice holding f(e) for every element e of s, in order.
func Map[S ~[]E, E any, V any](s S, f func(E) V) []V {
	if s == nil {
		return nil
	}
	rv := make([]V, len(s))
	for i, e := range s {
		rv[i] = f(e)
	}
	return rv
}

// Filter returns the elements of s for which keep returns true, in order.
func Filter[S ~[]E, E any](s S, keep func(E) bool) S {
	if s == nil {
		return nil
	}
	rv := make(S, 0, len(s))
	for _, e := range s {
		if keep(e) {
			rv = append(rv, e)
		}
	}
	return rv
}

// GroupByFunc groups the elements e_1, ..., e_n of s into separate slices by keyFunc(e).
// Within each group the original order is preserved.
func GroupByFunc[S ~[]E, E any, K comparable](s S, keyFunc func(E) K) map[K]S {
	rv := make(map[K]S)
	for _, e := range s {
		k := keyFunc(e)
		rv[k] = append(rv[k], e)
	}
	return rv
}

// Duplicates returns every element that occurs more than once in s, once each, in order of second occurrence.
func Duplicates[S ~[]E, E comparable](s S) S {
	var rv S
	seen := make(map[E]int, len(s))
	for _, e := range s {
		seen[e]++
		if seen[e] == 2 {
			rv = append(rv, e)
		}
	}
	return rv
}
