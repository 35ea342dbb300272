package textutil

import "strings"

// CompactStringMap trims keys and values and drops any entry left with an empty key or value.
// Later maps win on key collisions. The result is never nil.
func CompactStringMap(maps ...map[string]string) map[string]string {
	size := 0
	for _, m := range maps {
		size += len(m)
	}
	result := make(map[string]string, size)
	for _, m := range maps {
		for key, value := range m {
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if key == "" || value == "" {
				continue
			}
			result[key] = value
		}
	}
	return result
}
