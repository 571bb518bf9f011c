package problems

import (
	"os"
	"strings"
)

// Base returns the base URL under which problem type identifiers live.
// PROBLEM_BASE_URL wins when set; otherwise PUBLIC_BASE_URL gains a
// "/problems" suffix; the example.com fallback keeps dev responses valid.
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("PUBLIC_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://example.com/problems"
}

// Type builds the full problem type URL for a slug like "stage-order".
func Type(slug string) string { return Base() + "/" + slug }
