package stash

// reduceIndices applies contiguous-subsequence reduction to a sequence
// of content hashes, returning the indices (into the original
// sequence) that survive. A row-flapping producer can emit the same
// multi-element pattern back to back — [A B C A B C D] — and this
// collapses the repeat without losing the trailing D: at each
// position, after emitting s[i], it looks for the longest suffix of
// what's been emitted so far that matches the next run of the input,
// and if found skips straight past that run.
func reduceIndices(s []string) []int {
	var out []int
	n := len(s)
	for i := 0; i < n; {
		out = append(out, i)

		maxL := len(out)
		if remaining := n - (i + 1); remaining < maxL {
			maxL = remaining
		}

		advanced := false
		for l := maxL; l >= 1; l-- {
			suffix := out[len(out)-l:]
			matches := true
			for k := 0; k < l; k++ {
				if s[suffix[k]] != s[i+1+k] {
					matches = false
					break
				}
			}
			if matches {
				i += 1 + l
				advanced = true
				break
			}
		}
		if !advanced {
			i++
		}
	}
	return out
}
