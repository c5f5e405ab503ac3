// Copyright 2024 Canonical Ltd.
// Licensed under the LGPLv3, see LICENCE file for details.

package exchange

import (
	"encoding/json"
	"fmt"
)

// Decode renders fetched relation data for consumers that want typed
// values: each value that parses as JSON becomes the parsed value,
// anything else stays a string. The namespace itself only ever carries
// strings.
func Decode(data map[string]string) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for name, value := range data {
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			result[name] = value
			continue
		}
		result[name] = decoded
	}
	return result
}

// NormalizeValues renders typed values into the string form the
// namespace carries. Nil values become empty strings, which the
// channel treats as deletion.
func NormalizeValues(data map[string]interface{}) map[string]string {
	result := make(map[string]string, len(data))
	for name, value := range data {
		switch v := value.(type) {
		case nil:
			result[name] = ""
		case string:
			result[name] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				result[name] = fmt.Sprintf("%v", v)
				continue
			}
			result[name] = string(encoded)
		}
	}
	return result
}
