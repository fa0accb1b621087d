package regex

// Matches reports whether r matches all of s.
func Matches(r Regex, s string) bool {
	return match(r, s, 0, func(i int) bool { return i == len(s) })
}

// match tries r at offset i and hands every reachable end offset to k.
func match(r Regex, s string, i int, k func(int) bool) bool {
	switch r := r.(type) {
	case Empty:
		return k(i)
	case CharRange:
		return i < len(s) && s[i] >= r.Lo && s[i] <= r.Hi && k(i+1)
	case Choice:
		for _, alt := range r.Alts {
			if match(alt, s, i, k) {
				return true
			}
		}
		return false
	case Seq:
		return matchSeq(r.Parts, s, i, k)
	case Star:
		if k(i) {
			return true
		}
		// Each further iteration must consume input.
		return match(r.Body, s, i, func(j int) bool {
			return j > i && match(r, s, j, k)
		})
	}
	return false
}

func matchSeq(parts []Regex, s string, i int, k func(int) bool) bool {
	if len(parts) == 0 {
		return k(i)
	}
	return match(parts[0], s, i, func(j int) bool {
		return matchSeq(parts[1:], s, j, k)
	})
}
