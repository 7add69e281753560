package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// generateSessionID creates a unique session identifier.
func generateSessionID() string {
	return fmt.Sprintf("ses_%s", uuid.NewString())
}

// generateID creates a unique identifier with a prefix.
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func deadlineRemaining(deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Nanosecond
	}
	return remaining
}

// normalizeResponseMap coerces an arbitrary result payload into a map.
func normalizeResponseMap(result any) map[string]any {
	if result == nil {
		return nil
	}
	if existing, ok := result.(map[string]any); ok {
		return existing
	}
	if raw, err := json.Marshal(result); err == nil {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return map[string]any{"value": result}
}
