package header

import (
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCacheControl(t *testing.T) {
	cc := ParseCacheControl(http.Header{
		"Cache-Control": {`no-cache, no-store, max-age=60, s-maxage="120", private, public`,
			`must-revalidate; max-stale, min-fresh=30, only-if-cached, no-transform, immutable`},
	})
	assert.Equal(t, CacheControl{
		NoCache:         true,
		NoStore:         true,
		MaxAgeSeconds:   60,
		SMaxAgeSeconds:  120,
		IsPrivate:       true,
		IsPublic:        true,
		MustRevalidate:  true,
		MaxStaleSeconds: math.MaxInt32,
		MinFreshSeconds: 30,
		OnlyIfCached:    true,
		NoTransform:     true,
		Immutable:       true,
	}, cc)
}

func TestParseCacheControlDefaults(t *testing.T) {
	cc := ParseCacheControl(http.Header{})
	assert.Equal(t, -1, cc.MaxAgeSeconds)
	assert.Equal(t, -1, cc.SMaxAgeSeconds)
	assert.Equal(t, -1, cc.MaxStaleSeconds)
	assert.Equal(t, -1, cc.MinFreshSeconds)
	assert.False(t, cc.NoCache)
	assert.Empty(t, cc.String())
}

func TestParseCacheControlValues(t *testing.T) {
	for v, want := range map[string]int{
		"max-age=abc":                  -1,
		"max-age=-5":                   0,
		"max-age=99999999999999999999": math.MaxInt32,
		"max-age = 7":                  7,
		"unknown=1, max-age=3, other":  3,
		`max-age="10`:                  10,
		"MAX-AGE=4":                    4,
	} {
		cc := ParseCacheControl(http.Header{"Cache-Control": {v}})
		assert.Equal(t, want, cc.MaxAgeSeconds, v)
	}
}

func TestParseCacheControlPragma(t *testing.T) {
	cc := ParseCacheControl(http.Header{"Pragma": {"no-cache"}})
	assert.True(t, cc.NoCache)
	assert.Equal(t, "no-cache", cc.String())
}

func TestCacheControlString(t *testing.T) {
	cc := ParseCacheControl(http.Header{"Cache-Control": {"public, max-age=60, immutable"}})
	assert.Equal(t, "max-age=60, public, immutable", cc.String())
}
