package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON unmarshals model output into v, tolerating prose around the
// JSON object by falling back to the outermost brace span.
func decodeJSON(raw string, v interface{}) error {
	raw = strings.TrimSpace(raw)

	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}
