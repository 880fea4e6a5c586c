// Package utils holds small parsing helpers shared by the HTTP handlers.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageParams normalizes raw page/page_size query values. The page is 1-based
// and floors at 1; the size falls back to def when unset or non-positive and
// is capped at max so a single request cannot pull the whole table.
func PageParams(rawPage, rawSize string, def, max int) (page, size int) {
	page = AtoiDefault(rawPage, 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(rawSize, def)
	if size <= 0 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}
