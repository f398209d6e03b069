package keypath

// Match reports whether key matches a KEYS/SCAN glob pattern. It follows
// the server's rules: '*' and '?' also match '/', '[^a-z]' negates a class
// and '\' escapes the next byte.
func Match(pattern, key string) bool {
	p, s := 0, 0
	for p < len(pattern) {
		switch pattern[p] {
		case '*':
			for p+1 < len(pattern) && pattern[p+1] == '*' {
				p++
			}
			if p+1 == len(pattern) {
				return true
			}
			for i := s; i <= len(key); i++ {
				if Match(pattern[p+1:], key[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s >= len(key) {
				return false
			}
			s++
		case '[':
			if s >= len(key) {
				return false
			}
			n, ok := matchClass(pattern[p+1:], key[s])
			if !ok {
				return false
			}
			p += n
			s++
		case '\\':
			if p+1 < len(pattern) {
				p++
			}
			fallthrough
		default:
			if s >= len(key) || pattern[p] != key[s] {
				return false
			}
			s++
		}
		p++
	}
	return s == len(key)
}

// matchClass matches b against the class body that follows '['. It returns
// the number of pattern bytes consumed, closing ']' included.
func matchClass(class string, b byte) (int, bool) {
	i := 0
	negate := false
	if i < len(class) && class[i] == '^' {
		negate = true
		i++
	}
	match := false
	for i < len(class) && class[i] != ']' {
		switch {
		case class[i] == '\\' && i+1 < len(class):
			i++
			if class[i] == b {
				match = true
			}
		case i+2 < len(class) && class[i+1] == '-':
			lo, hi := class[i], class[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if b >= lo && b <= hi {
				match = true
			}
			i += 2
		default:
			if class[i] == b {
				match = true
			}
		}
		i++
	}
	if i < len(class) {
		i++
	}
	return i, match != negate
}
