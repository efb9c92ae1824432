package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableForSameArgs(t *testing.T) {
	a := Fingerprint("pkg.Fn", "alpha", 1)
	b := Fingerprint("pkg.Fn", "alpha", 1)
	assert.Equal(t, a, b)
}

func TestFingerprint_DiffersByArgs(t *testing.T) {
	a := Fingerprint("pkg.Fn", "alpha")
	b := Fingerprint("pkg.Fn", "beta")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_DiffersByQualifiedName(t *testing.T) {
	a := Fingerprint("pkg.Fn1", "alpha")
	b := Fingerprint("pkg.Fn2", "alpha")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_MapArgsOrderIndependent(t *testing.T) {
	m1 := map[string]string{"a": "1", "b": "2"}
	m2 := map[string]string{"b": "2", "a": "1"}
	assert.Equal(t, Fingerprint("pkg.Fn", m1), Fingerprint("pkg.Fn", m2))
}

func TestCached_MemoizesResultWithinTTL(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()

	calls := 0
	fn := func(args ...any) (string, error) {
		calls++
		return "result", nil
	}
	cached := Cached(store, "pkg.Fn", time.Minute, fn)

	r1, err := cached("x")
	require.NoError(t, err)
	r2, err := cached("x")
	require.NoError(t, err)

	assert.Equal(t, "result", r1)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, calls, "second call within TTL should hit the cache, not fn")
}

func TestCached_DistinctArgsDoNotShareEntries(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()

	calls := 0
	fn := func(args ...any) (string, error) {
		calls++
		return args[0].(string), nil
	}
	cached := Cached(store, "pkg.Fn", time.Minute, fn)

	r1, _ := cached("x")
	r2, _ := cached("y")

	assert.Equal(t, "x", r1)
	assert.Equal(t, "y", r2)
	assert.Equal(t, 2, calls)
}

func TestCached_ErrorNotCached(t *testing.T) {
	store := NewMemory(0)
	defer store.Close()

	calls := 0
	fn := func(args ...any) (string, error) {
		calls++
		return "", assert.AnError
	}
	cached := Cached(store, "pkg.Fn", time.Minute, fn)

	_, err1 := cached("x")
	_, err2 := cached("x")

	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.Equal(t, 2, calls, "an error result must not be memoized")
}
