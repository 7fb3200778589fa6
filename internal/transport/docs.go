// package transport contains implementations to requirements on *message syntaxes*
// defined by http related RFCs.
//
// as of 2022.06, RFCs that were to define HTTP/1.1 (RFC753x) are obsoleted by:
//
//	HTTP Semantics (RFC9110)
//	HTTP Caching (RFC9111) and
//	HTTP/1.1 (RFC9112)
//
// only HTTP/1.1 framing lives here, as an [exchange.Codec]: the exchange
// decides what is sent and when, the codec only knows how it looks on the wire.
//
// net/http components are reused on the "semantics" part ([net/http.URL], [net/http.Header], etc.)
package transport
