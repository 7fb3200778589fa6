// package http is a client side HTTP/1.1 implementation built around
// exchanges: one request and its response carried over a pooled connection,
// with every body byte accounted for.
package http

import (
	"net/http"

	"github.com/frankli0324/go-http/internal"
	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/header"
	"github.com/frankli0324/go-http/internal/model"
)

type Client = internal.Client
type Header = http.Header
type Request = model.Request
type PreparedRequest = model.PreparedRequest
type Response = model.Response
type ResponseBuilder = model.ResponseBuilder
type ResponseBody = model.ResponseBody
type Protocol = model.Protocol
type Socket = model.Socket

type Challenge = header.Challenge
type CacheControl = header.CacheControl

type Handler = internal.Handler
type Middleware = internal.Middleware

// Listener observes the lifecycle of every exchange a [Client] runs.
type Listener = exchange.Listener
type Call = exchange.Call

const (
	HTTP10 = model.HTTP10
	HTTP11 = model.HTTP11
	HTTP2  = model.HTTP2
)

var (
	ErrFramingViolation = exchange.ErrFramingViolation
	ErrPrematureClose   = exchange.ErrPrematureClose
	ErrCanceled         = exchange.ErrCanceled
	ErrInvalidResponse  = model.ErrInvalidResponse
	ErrBodyConsumed     = model.ErrBodyConsumed
)

type ProtocolError = exchange.ProtocolError

func NewResponseBuilder() *ResponseBuilder { return model.NewResponseBuilder() }
