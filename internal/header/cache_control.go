package header

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

// CacheControl holds the directives of the Cache-Control (and Pragma)
// headers. Second counts are -1 when the directive is absent.
type CacheControl struct {
	NoCache         bool
	NoStore         bool
	MaxAgeSeconds   int
	SMaxAgeSeconds  int
	IsPrivate       bool
	IsPublic        bool
	MustRevalidate  bool
	MaxStaleSeconds int
	MinFreshSeconds int
	OnlyIfCached    bool
	NoTransform     bool
	Immutable       bool
}

// ParseCacheControl never fails: unknown directives and malformed values
// are ignored.
func ParseCacheControl(h http.Header) CacheControl {
	cc := CacheControl{
		MaxAgeSeconds:   -1,
		SMaxAgeSeconds:  -1,
		MaxStaleSeconds: -1,
		MinFreshSeconds: -1,
	}
	for _, name := range [...]string{"Cache-Control", "Pragma"} {
		for _, v := range h.Values(name) {
			cc.parse(v)
		}
	}
	return cc
}

func (cc *CacheControl) parse(v string) {
	pos := 0
	for pos < len(v) {
		start := pos
		pos = indexOfAny(v, pos, "=,;")
		directive := strings.TrimSpace(v[start:pos])

		var param string
		if pos == len(v) || v[pos] == ',' || v[pos] == ';' {
			pos++ // consume ',' or ';'
		} else {
			pos++ // consume '='
			pos = skipWhitespace(v, pos)
			if pos < len(v) && v[pos] == '"' {
				pos++
				end := strings.IndexByte(v[pos:], '"')
				if end == -1 {
					param, pos = v[pos:], len(v)
				} else {
					param, pos = v[pos:pos+end], pos+end+1
				}
			} else {
				start := pos
				pos = indexOfAny(v, pos, ",;")
				param = strings.TrimSpace(v[start:pos])
				pos++
			}
		}

		switch strings.ToLower(directive) {
		case "no-cache":
			cc.NoCache = true
		case "no-store":
			cc.NoStore = true
		case "max-age":
			cc.MaxAgeSeconds = nonNegativeSeconds(param, -1)
		case "s-maxage":
			cc.SMaxAgeSeconds = nonNegativeSeconds(param, -1)
		case "private":
			cc.IsPrivate = true
		case "public":
			cc.IsPublic = true
		case "must-revalidate":
			cc.MustRevalidate = true
		case "max-stale":
			cc.MaxStaleSeconds = nonNegativeSeconds(param, math.MaxInt32)
		case "min-fresh":
			cc.MinFreshSeconds = nonNegativeSeconds(param, -1)
		case "only-if-cached":
			cc.OnlyIfCached = true
		case "no-transform":
			cc.NoTransform = true
		case "immutable":
			cc.Immutable = true
		}
	}
}

func (cc CacheControl) String() string {
	var parts []string
	flag := func(set bool, name string) {
		if set {
			parts = append(parts, name)
		}
	}
	seconds := func(n int, name string) {
		if n != -1 {
			parts = append(parts, name+"="+strconv.Itoa(n))
		}
	}
	flag(cc.NoCache, "no-cache")
	flag(cc.NoStore, "no-store")
	seconds(cc.MaxAgeSeconds, "max-age")
	seconds(cc.SMaxAgeSeconds, "s-maxage")
	flag(cc.IsPrivate, "private")
	flag(cc.IsPublic, "public")
	flag(cc.MustRevalidate, "must-revalidate")
	seconds(cc.MaxStaleSeconds, "max-stale")
	seconds(cc.MinFreshSeconds, "min-fresh")
	flag(cc.OnlyIfCached, "only-if-cached")
	flag(cc.NoTransform, "no-transform")
	flag(cc.Immutable, "immutable")
	return strings.Join(parts, ", ")
}

func indexOfAny(s string, from int, chars string) int {
	if i := strings.IndexAny(s[from:], chars); i != -1 {
		return from + i
	}
	return len(s)
}

func skipWhitespace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

// nonNegativeSeconds clamps to [0, MaxInt32]; unparsable values yield def.
func nonNegativeSeconds(s string, def int) int {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange && !strings.HasPrefix(s, "-") {
			return math.MaxInt32
		}
		return def
	}
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < 0:
		return 0
	}
	return int(n)
}
