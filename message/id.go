package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a correlation id linking a response to its originating request.
// JSON-RPC allows both strings and integers, so ID keeps whichever form
// arrived and reproduces it exactly on re-encode. The zero ID marshals as
// null, which is how a fire-and-forget shutdown is expressed.
type ID struct {
	str   string
	num   int64
	isStr bool
	valid bool
}

// IntID returns an integer-valued id.
func IntID(n int64) ID {
	return ID{num: n, valid: true}
}

// StringID returns a string-valued id.
func StringID(s string) ID {
	return ID{str: s, isStr: true, valid: true}
}

// IsNull reports whether the id is absent (JSON null or missing).
func (id ID) IsNull() bool { return !id.valid }

// Int64 returns the numeric value, and false for string or null ids.
func (id ID) Int64() (int64, bool) {
	if !id.valid || id.isStr {
		return 0, false
	}
	return id.num, true
}

// Equal reports whether two ids match in both type and value.
// A null id matches nothing, including another null.
func (id ID) Equal(other ID) bool {
	if !id.valid || !other.valid {
		return false
	}
	if id.isStr != other.isStr {
		return false
	}
	if id.isStr {
		return id.str == other.str
	}
	return id.num == other.num
}

// Key returns a map-key form of the id, distinguishing 7 from "7".
func (id ID) Key() string {
	if !id.valid {
		return ""
	}
	if id.isStr {
		return "s:" + id.str
	}
	return "n:" + strconv.FormatInt(id.num, 10)
}

func (id ID) String() string {
	switch {
	case !id.valid:
		return "null"
	case id.isStr:
		return strconv.Quote(id.str)
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return json.Marshal(id.num)
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or an integer: %w", err)
	}
	*id = IntID(n)
	return nil
}
