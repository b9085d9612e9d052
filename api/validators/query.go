package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
)

// ParseQueryInt reads key as an int in [lo, hi]; absent yields def.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric", nil)
	}
	if value < lo || value > hi {
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": lo, "max": hi})
	}
	return value, nil
}

// ParseQueryID reads an optional positive identifier; absent yields nil.
func ParseQueryID(r *http.Request, key string) (*int64, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return nil, queryError(key, "query parameter must be a positive integer", nil)
	}
	return &value, nil
}

func queryValue(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func queryError(key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}
