package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Fingerprint builds a stable key from a function identity and its
// argument tuple: primitives are formatted literally, everything else
// is hashed via its %#v representation. Map arguments are rendered
// with sorted keys so fingerprinting is order-independent.
func Fingerprint(qualifiedName string, args ...any) string {
	h := sha256.New()
	h.Write([]byte(qualifiedName))
	for _, a := range args {
		h.Write([]byte("|"))
		h.Write([]byte(fingerprintOne(a)))
	}
	return qualifiedName + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func fingerprintOne(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprintf("%v", v)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := ""
		for _, k := range keys {
			out += k + "=" + v[k] + ";"
		}
		return out
	default:
		return fmt.Sprintf("%#v", v)
	}
}

// Cached wraps fn with a TTL-bound memoization layer backed by store.
// The key binds qualifiedName (the function's identity) together with
// a stable fingerprint of its arguments, so distinct functions sharing
// a backend never collide.
func Cached[T any](store Store, qualifiedName string, ttl time.Duration, fn func(args ...any) (T, error)) func(args ...any) (T, error) {
	return func(args ...any) (T, error) {
		key := Fingerprint(qualifiedName, args...)

		if cached, ok := store.Get(key); ok {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}

		result, err := fn(args...)
		if err != nil {
			var zero T
			return zero, err
		}

		store.Set(key, result, ttl)
		return result, nil
	}
}
