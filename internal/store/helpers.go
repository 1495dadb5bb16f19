package store

// maxListLimit is a defense-in-depth cap on limit values for list queries.
const maxListLimit = 1000

// clampLimit applies the default and the cap to a list limit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > maxListLimit:
		return maxListLimit
	}

	return limit
}

// nullable returns nil for the empty string so optional text columns store NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// deref returns the pointed-to string or "".
func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
