package httputil

import (
	"fmt"
	"net/http"
	"strconv"
)

// ParseIntParam parses an integer query parameter with a default value.
// Returns defaultVal if the parameter is empty or invalid.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// NonNegativeParam reads query parameter name. Absent means zero; anything
// that is not a non-negative integer is an error naming the parameter.
func NonNegativeParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// Page is a limit/offset window for listing endpoints. A zero Limit means
// the caller's default.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ParsePage extracts limit and offset query parameters.
func ParsePage(r *http.Request) (Page, error) {
	limit, err := NonNegativeParam(r, "limit")
	if err != nil {
		return Page{}, err
	}
	offset, err := NonNegativeParam(r, "offset")
	if err != nil {
		return Page{}, err
	}
	return Page{Limit: limit, Offset: offset}, nil
}
