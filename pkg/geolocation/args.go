package geolocation

import (
	"fmt"
	"time"
)

// Argument lists arrive JSON-decoded, so numbers are usually float64 but
// native hosts may hand over any integer width.

func argAt(args []any, i int) (any, bool) {
	if i < 0 || i >= len(args) || args[i] == nil {
		return nil, false
	}
	return args[i], true
}

func argString(args []any, i int) (string, bool) {
	v, ok := argAt(args, i)
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case fmt.Stringer:
		return s.String(), true
	default:
		return "", false
	}
}

func argBool(args []any, i int) bool {
	v, ok := argAt(args, i)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// argMillis reads a millisecond count. Missing, malformed and negative values read as zero.
func argMillis(args []any, i int) time.Duration {
	v, ok := argAt(args, i)
	if !ok {
		return 0
	}
	ms, ok := toInt64(v)
	if !ok || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
