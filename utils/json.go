package utils

import (
	"encoding/json"
	"fmt"
)

// MarshalToJSON renders v for a text column. A nil v renders as "".
func MarshalToJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %T: %w", v, err)
	}
	return string(b), nil
}
