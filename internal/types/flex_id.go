package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexID is a record id that clients may send as a number or a string
type FlexID uint

func (f *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		return f.set(n)
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		val, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("FlexID: invalid id string %q: %w", s, err)
		}
		return f.set(val)
	}

	return fmt.Errorf("FlexID: unexpected type, expected number or string")
}

func (f *FlexID) set(n uint64) error {
	if n == 0 {
		return fmt.Errorf("FlexID: id must be positive")
	}
	*f = FlexID(n)
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint(f))
}

func (f FlexID) Uint() uint {
	return uint(f)
}
