package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// -- Sentinel errors --

var (
	// ErrNotFound is returned when a scan request or related record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks caller input that never reaches the core.
	ErrValidation = errors.New("validation error")
	// ErrElementTimeout is returned by a session when no element matched within the wait bound.
	ErrElementTimeout = errors.New("timeout waiting for selector")
)

// FlexString is a string that also accepts JSON numbers and booleans.
// Step payloads written by older clients store numeric inputs unquoted.
type FlexString string

// String returns the underlying text.
func (f FlexString) String() string { return string(f) }

// UnmarshalJSON coerces scalars to their text form.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	switch string(data) {
	case "true", "false":
		*f = FlexString(data)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return errors.New("flex string: value must be a string, number or boolean")
	}
	*f = FlexString(data)
	return nil
}
