package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/shopfeed-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
)

const missingArgumentsMessage = "not all required arguments were supplied"

func currentUser(r *http.Request) (int64, error) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}

// flexInt accepts both 12 and "12"; form clients send numbers as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}
		*f = flexInt(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// flexString accepts a JSON string, number or boolean and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*f = flexString(raw)
		return nil
	}
	*f = flexString(data)
	return nil
}

// itemsField holds a list that may arrive as a JSON array or as a string
// containing one.
type itemsField json.RawMessage

func (i *itemsField) UnmarshalJSON(data []byte) error {
	*i = append((*i)[:0], data...)
	return nil
}

func (i itemsField) present() bool {
	trimmed := bytes.TrimSpace(i)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte(`""`))
}

// decode unmarshals the list into dest. Per-item checks happen in the service
// so one bad entry does not reject the batch.
func (i itemsField) decode(dest any) error {
	raw := bytes.TrimSpace(i)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return invalidItems(err)
		}
		raw = []byte(inner)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return invalidItems(err)
	}
	return nil
}

// ids reads either [1,2] or the comma separated form "1,2".
func (i itemsField) ids() ([]int64, error) {
	raw := bytes.TrimSpace(i)
	if len(raw) > 0 && raw[0] == '[' {
		var values []flexInt
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, invalidItems(err)
		}
		out := make([]int64, 0, len(values))
		for _, v := range values {
			out = append(out, int64(v))
		}
		return out, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, invalidItems(err)
	}
	var out []int64
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, invalidItems(err)
		}
		out = append(out, v)
	}
	return out, nil
}

func invalidItems(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request format").
		WithDetails(map[string]string{"items": err.Error()})
}

func missingArguments(fields ...string) error {
	details := make(map[string]string, len(fields))
	for _, f := range fields {
		details[f] = "is required"
	}
	return pkgerrors.New(pkgerrors.CodeValidation, missingArgumentsMessage).WithDetails(details)
}
