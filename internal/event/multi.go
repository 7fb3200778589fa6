package event

import (
	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
)

// Multi fans every event out to each listener, in order.
type Multi []exchange.Listener

func (m Multi) RequestHeadersStart(call exchange.Call) {
	for _, l := range m {
		l.RequestHeadersStart(call)
	}
}

func (m Multi) RequestHeadersEnd(call exchange.Call, req *model.PreparedRequest) {
	for _, l := range m {
		l.RequestHeadersEnd(call, req)
	}
}

func (m Multi) RequestBodyStart(call exchange.Call) {
	for _, l := range m {
		l.RequestBodyStart(call)
	}
}

func (m Multi) RequestBodyEnd(call exchange.Call, byteCount int64) {
	for _, l := range m {
		l.RequestBodyEnd(call, byteCount)
	}
}

func (m Multi) RequestFailed(call exchange.Call, err error) {
	for _, l := range m {
		l.RequestFailed(call, err)
	}
}

func (m Multi) ResponseHeadersStart(call exchange.Call) {
	for _, l := range m {
		l.ResponseHeadersStart(call)
	}
}

func (m Multi) ResponseHeadersEnd(call exchange.Call, resp *model.Response) {
	for _, l := range m {
		l.ResponseHeadersEnd(call, resp)
	}
}

func (m Multi) ResponseBodyStart(call exchange.Call) {
	for _, l := range m {
		l.ResponseBodyStart(call)
	}
}

func (m Multi) ResponseBodyEnd(call exchange.Call, byteCount int64) {
	for _, l := range m {
		l.ResponseBodyEnd(call, byteCount)
	}
}

func (m Multi) ResponseFailed(call exchange.Call, err error) {
	for _, l := range m {
		l.ResponseFailed(call, err)
	}
}

var (
	_ exchange.Listener = Multi(nil)
	_ exchange.Listener = (*Logger)(nil)
	_ exchange.Listener = (*Metrics)(nil)
)
