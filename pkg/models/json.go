package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// JSON is a raw JSON column that works with both PostgreSQL and SQLite text
// columns.
type JSON json.RawMessage

// Value implements driver.Valuer interface for database writes.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, errors.New("invalid JSON")
	}
	return string(j), nil
}

// Scan implements sql.Scanner interface for database reads.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("null")
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON value: %w", err)
	}
	if !json.Valid(bytes) {
		return errors.New("invalid JSON in database")
	}

	*j = JSON(append([]byte(nil), bytes...))
	return nil
}

// MarshalJSON implements json.Marshaler interface.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return []byte(j), nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// String returns the JSON as a string.
func (j JSON) String() string {
	return string(j)
}

// StringArray stores a string list as a JSON array in a text column.
// Membership queries use a LIKE match on the quoted element, see
// JSONContainsPattern.
type StringArray []string

// Scan implements the sql.Scanner interface.
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to unmarshal string array: %w", err)
	}
	if len(bytes) == 0 {
		*s = StringArray{}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(bytes, &arr); err != nil {
		return err
	}

	*s = StringArray(arr)
	return nil
}

// Value implements the driver.Valuer interface.
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Contains reports whether v is in the array.
func (s StringArray) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// Union returns the sorted set union of s and others. s is not modified.
func (s StringArray) Union(others ...string) StringArray {
	seen := make(map[string]struct{}, len(s)+len(others))
	out := make(StringArray, 0, len(s)+len(others))
	for _, v := range append(append([]string{}, s...), others...) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Without returns a copy of s with v removed.
func (s StringArray) Without(v string) StringArray {
	out := make(StringArray, 0, len(s))
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

// JSONContainsPattern returns a LIKE pattern matching a JSON string array
// column that contains v.
func JSONContainsPattern(v string) string {
	b, _ := json.Marshal(v)
	return "%" + string(b) + "%"
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
