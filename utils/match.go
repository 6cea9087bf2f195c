package utils

// MatchKey checks if the given value (an action or resource name) matches
// the provided pattern. Patterns may include wildcard '*' which matches any
// sequence of characters (including none). A pattern without wildcards must
// match exactly, so keys like "article:42" compare literally.
func MatchKey(value, pattern string) bool {
	if pattern == value || pattern == "*" {
		return true
	}

	vIndex, pIndex := 0, 0
	star, mark := -1, 0
	vLen, pLen := len(value), len(pattern)

	for vIndex < vLen {
		switch {
		case pIndex < pLen && pattern[pIndex] != '*' && pattern[pIndex] == value[vIndex]:
			vIndex++
			pIndex++
		case pIndex < pLen && pattern[pIndex] == '*':
			// Remember the star so a failed literal run can back up here
			star = pIndex
			mark = vIndex
			pIndex++
		case star >= 0:
			pIndex = star + 1
			mark++
			vIndex = mark
		default:
			return false
		}
	}

	for pIndex < pLen && pattern[pIndex] == '*' {
		pIndex++
	}
	return pIndex == pLen
}
