package audit

import "strings"

// redactedValue replaces secrets in audit snapshots.
const redactedValue = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey", "authorization",
}

// Redact returns a copy of fields with password-like values masked.
// Nested maps are redacted recursively.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitive(k) {
			out[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
