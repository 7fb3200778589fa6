// package event holds the exchange listeners a client may be configured
// with.
package event

import (
	"go.uber.org/zap"

	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
)

// Logger logs every lifecycle event at debug level and failures at warn.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("exchange")}
}

func callFields(call exchange.Call) []zap.Field {
	req := call.Request()
	if req == nil {
		return nil
	}
	return []zap.Field{zap.String("method", req.Method), zap.Stringer("url", req.U)}
}

func (l *Logger) RequestHeadersStart(call exchange.Call) {
	l.log.Debug("request headers start", callFields(call)...)
}

func (l *Logger) RequestHeadersEnd(call exchange.Call, req *model.PreparedRequest) {
	l.log.Debug("request headers end", append(callFields(call), zap.Int("headers", len(req.Header)))...)
}

func (l *Logger) RequestBodyStart(call exchange.Call) {
	l.log.Debug("request body start", callFields(call)...)
}

func (l *Logger) RequestBodyEnd(call exchange.Call, byteCount int64) {
	l.log.Debug("request body end", append(callFields(call), zap.Int64("bytes", byteCount))...)
}

func (l *Logger) RequestFailed(call exchange.Call, err error) {
	l.log.Warn("request failed", append(callFields(call), zap.Error(err))...)
}

func (l *Logger) ResponseHeadersStart(call exchange.Call) {
	l.log.Debug("response headers start", callFields(call)...)
}

func (l *Logger) ResponseHeadersEnd(call exchange.Call, resp *model.Response) {
	l.log.Debug("response headers end", append(callFields(call),
		zap.Int("code", resp.Code()), zap.Stringer("protocol", resp.Protocol()))...)
}

func (l *Logger) ResponseBodyStart(call exchange.Call) {
	l.log.Debug("response body start", callFields(call)...)
}

func (l *Logger) ResponseBodyEnd(call exchange.Call, byteCount int64) {
	l.log.Debug("response body end", append(callFields(call), zap.Int64("bytes", byteCount))...)
}

func (l *Logger) ResponseFailed(call exchange.Call, err error) {
	l.log.Warn("response failed", append(callFields(call), zap.Error(err))...)
}
