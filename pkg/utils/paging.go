package utils

import "strconv"

// ParsePaging reads page and limit query values. Missing or invalid values
// fall back to page 1 and defLimit; limit is capped at maxLimit.
func ParsePaging(pageStr, limitStr string, defLimit, maxLimit int) (page, limit int) {
	page, limit = 1, defLimit
	if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
		page = n
	}
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
		limit = n
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
