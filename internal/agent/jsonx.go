package agent

import (
	"encoding/json"
	"strings"
)

// DecodeObject decodes the first JSON object embedded in text into a T.
// Models often wrap JSON in prose or code fences, so every '{' is tried as a
// start position until one decodes cleanly into T. It reports false when no
// object decodes; the zero T must then be treated as absent.
func DecodeObject[T any](text string) (T, bool) {
	for i := 0; i < len(text); i++ {
		j := strings.IndexByte(text[i:], '{')
		if j < 0 {
			break
		}
		i += j

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		return v, true
	}
	var zero T
	return zero, false
}
