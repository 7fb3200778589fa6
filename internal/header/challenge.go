package header

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Challenge is an RFC 7235 authentication challenge, as carried by
// WWW-Authenticate and Proxy-Authenticate.
type Challenge struct {
	Scheme string
	// Token68 is set when the challenge carries a token68 instead of
	// auth-params, e.g. "Negotiate YIIG...==".
	Token68 string
	// Params holds the auth-params with lower-cased names.
	Params map[string]string
}

// Realm returns the "realm" auth-param, or "" if absent.
func (c Challenge) Realm() string {
	return c.Params["realm"]
}

// Charset returns the "charset" auth-param, defaulting to ISO-8859-1.
func (c Challenge) Charset() string {
	if cs, ok := c.Params["charset"]; ok && cs != "" {
		return cs
	}
	return "ISO-8859-1"
}

// ParseChallenges parses every challenge found in the header values of
// name. Malformed challenges are dropped, along with whatever follows them
// in the same header value.
func ParseChallenges(h http.Header, name string) []Challenge {
	var result []Challenge
	for _, v := range h.Values(name) {
		result = readChallenges(v, result)
	}
	return result
}

func readChallenges(v string, result []Challenge) []Challenge {
	l := &lexer{s: v}
	var peek string
	for {
		if peek == "" {
			l.skipCommasAndWhitespace()
			peek = l.readToken()
			if peek == "" {
				return result
			}
		}
		scheme := peek
		if !isToken(scheme) {
			return result
		}

		commaPrefixed := l.skipCommasAndWhitespace()
		peek = l.readToken()
		if peek == "" {
			if !l.exhausted() {
				return result // expected a token; not a challenge
			}
			return append(result, Challenge{Scheme: scheme, Params: map[string]string{}})
		}

		eqCount := l.skipAll('=')
		commaSuffixed := l.skipCommasAndWhitespace()

		// a token68 has nothing after its trailing '='s
		if !commaPrefixed && (commaSuffixed || l.exhausted()) {
			result = append(result, Challenge{
				Scheme:  scheme,
				Token68: peek + strings.Repeat("=", eqCount),
				Params:  map[string]string{},
			})
			peek = ""
			continue
		}

		params := map[string]string{}
		eqCount += l.skipAll('=')
		for {
			if peek == "" {
				peek = l.readToken()
				if l.skipCommasAndWhitespace() {
					break // a scheme name followed by ','
				}
				eqCount = l.skipAll('=')
			}
			if eqCount == 0 {
				break // a scheme name
			}
			if eqCount > 1 || l.skipCommasAndWhitespace() || !isToken(peek) {
				return result
			}
			var value string
			var ok bool
			if l.startsWith('"') {
				value, ok = l.readQuotedString()
			} else {
				value = l.readToken()
				ok = value != ""
			}
			if !ok {
				return result // expected a value
			}
			key := strings.ToLower(peek)
			if _, dup := params[key]; dup {
				return result
			}
			params[key] = value
			peek = ""
			if !l.skipCommasAndWhitespace() && !l.exhausted() {
				return result // expected ',' or end of value
			}
		}
		result = append(result, Challenge{Scheme: scheme, Params: params})
	}
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}

type lexer struct {
	s   string
	pos int
}

func (l *lexer) exhausted() bool { return l.pos >= len(l.s) }

func (l *lexer) startsWith(b byte) bool {
	return !l.exhausted() && l.s[l.pos] == b
}

// skipCommasAndWhitespace reports whether a comma was consumed.
func (l *lexer) skipCommasAndWhitespace() (comma bool) {
	for !l.exhausted() {
		switch l.s[l.pos] {
		case ',':
			comma = true
		case ' ', '\t':
		default:
			return
		}
		l.pos++
	}
	return
}

func (l *lexer) skipAll(b byte) (n int) {
	for l.startsWith(b) {
		l.pos++
		n++
	}
	return
}

func (l *lexer) readToken() string {
	start := l.pos
	for !l.exhausted() && strings.IndexByte("\t ,=", l.s[l.pos]) == -1 {
		l.pos++
	}
	return l.s[start:l.pos]
}

func (l *lexer) readQuotedString() (string, bool) {
	l.pos++ // opening quote
	var b strings.Builder
	for !l.exhausted() {
		c := l.s[l.pos]
		l.pos++
		switch c {
		case '"':
			return b.String(), true
		case '\\':
			if l.exhausted() {
				return "", false
			}
			b.WriteByte(l.s[l.pos])
			l.pos++
		default:
			b.WriteByte(c)
		}
	}
	return "", false // unterminated
}
