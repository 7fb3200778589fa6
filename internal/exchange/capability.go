package exchange

import (
	"io"
	"net"
	"net/http"

	"github.com/frankli0324/go-http/internal/model"
)

// Route identifies where a connection leads.
type Route struct {
	Scheme string
	Host   string
	Port   string
}

func (r Route) Address() string {
	return net.JoinHostPort(r.Host, r.Port)
}

func (r Route) String() string {
	return r.Scheme + "://" + r.Address()
}

// Call owns an exchange. It is told about every completed direction and
// may substitute the failure that is surfaced to the caller.
type Call interface {
	Request() *model.PreparedRequest
	MessageDone(e *Exchange, requestDone, responseDone bool, err error) error
	// TimeoutEarlyExit stops call-scoped timeouts.
	TimeoutEarlyExit()
}

// Carrier is the pooled connection an exchange runs on. It may be shared
// with other exchanges, so implementations guard their own state.
type Carrier interface {
	Route() Route
	TrackFailure(call Call, err error)
	// NoNewExchanges prevents the carrier from being offered again.
	NoNewExchanges()
	// UseAsSocket repurposes the carrier as a raw socket for good.
	UseAsSocket()
	// Cancel interrupts blocked I/O on the carrier.
	Cancel()
}

// Finder is what located the carrier for a call.
type Finder interface {
	Route() Route
}

// Codec encodes requests and decodes responses for one HTTP version.
type Codec interface {
	Carrier() Carrier

	WriteRequestHeaders(req *model.PreparedRequest) error
	// CreateRequestBody returns a sink for a body of contentLength bytes,
	// -1 if unknown.
	CreateRequestBody(req *model.PreparedRequest, contentLength int64) (io.WriteCloser, error)
	FlushRequest() error
	FinishRequest() error

	// ReadResponseHeaders returns nil when expectContinue is set and the
	// peer answered 100 Continue.
	ReadResponseHeaders(expectContinue bool) (*model.ResponseBuilder, error)
	ReportedContentLength(resp *model.Response) int64
	OpenResponseBodySource(resp *model.Response) (io.ReadCloser, error)
	// IsResponseComplete reports whether the response body was fully read
	// off the wire, which may precede an end-of-stream read.
	IsResponseComplete() bool

	Trailers() (http.Header, error)
	PeekTrailers() http.Header

	// Socket hands out the raw streams after a protocol upgrade.
	Socket() (source io.ReadCloser, sink io.WriteCloser)
	Cancel()
}

// Listener observes the lifecycle of exchanges. Implementations must not
// block.
type Listener interface {
	RequestHeadersStart(call Call)
	RequestHeadersEnd(call Call, req *model.PreparedRequest)
	RequestBodyStart(call Call)
	RequestBodyEnd(call Call, byteCount int64)
	RequestFailed(call Call, err error)
	ResponseHeadersStart(call Call)
	ResponseHeadersEnd(call Call, resp *model.Response)
	ResponseBodyStart(call Call)
	ResponseBodyEnd(call Call, byteCount int64)
	ResponseFailed(call Call, err error)
}

type NopListener struct{}

func (NopListener) RequestHeadersStart(Call)                        {}
func (NopListener) RequestHeadersEnd(Call, *model.PreparedRequest)  {}
func (NopListener) RequestBodyStart(Call)                           {}
func (NopListener) RequestBodyEnd(Call, int64)                      {}
func (NopListener) RequestFailed(Call, error)                       {}
func (NopListener) ResponseHeadersStart(Call)                       {}
func (NopListener) ResponseHeadersEnd(Call, *model.Response)        {}
func (NopListener) ResponseBodyStart(Call)                          {}
func (NopListener) ResponseBodyEnd(Call, int64)                     {}
func (NopListener) ResponseFailed(Call, error)                      {}
