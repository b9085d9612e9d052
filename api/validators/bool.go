package validators

import (
	"strings"

	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
)

var (
	truthyValues = map[string]struct{}{"y": {}, "yes": {}, "t": {}, "true": {}, "on": {}, "1": {}}
	falsyValues  = map[string]struct{}{"n": {}, "no": {}, "f": {}, "false": {}, "off": {}, "0": {}}
)

// ParseBoolString normalizes the loose boolean spellings accepted by the partner API.
func ParseBoolString(raw string) (bool, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := truthyValues[value]; ok {
		return true, nil
	}
	if _, ok := falsyValues[value]; ok {
		return false, nil
	}
	return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid boolean value").
		WithDetails(map[string]string{"value": raw})
}
