package echo

import "strings"

const redacted = "***REDACTED***"

var redactKeys = map[string]struct{}{
	"password": {}, "pass": {}, "passwd": {},
	"api_secret": {}, "secret": {}, "token": {}, "api_token": {},
	"authorization": {}, "auth": {}, "cookie": {}, "set-cookie": {},
	"session": {}, "session_secret": {},
	"totp": {}, "totp_secret": {},
}

var redactFragments = []string{"password", "secret", "token", "auth", "cookie"}

func sensitiveKey(key string) bool {
	lk := strings.ToLower(key)
	if _, ok := redactKeys[lk]; ok {
		return true
	}
	for _, f := range redactFragments {
		if strings.Contains(lk, f) {
			return true
		}
	}
	return false
}

// redact returns a copy of v with secret-shaped keys masked at any depth.
func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redact(val)
		}
		return out
	default:
		return v
	}
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return redact(m).(map[string]any)
}
