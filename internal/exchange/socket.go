package exchange

import "go.uber.org/multierr"

// Socket is the raw stream left after a protocol upgrade. Writes go through
// the request side of the exchange and reads through the response side,
// both of unknown length.
type Socket struct {
	e      *Exchange
	sink   *requestBodySink
	source *responseBodySource
}

func (s *Socket) Read(p []byte) (int, error)  { return s.source.Read(p) }
func (s *Socket) Write(p []byte) (int, error) { return s.sink.Write(p) }

func (s *Socket) Flush() error { return s.sink.Flush() }

// CloseWrite ends the outgoing direction only.
func (s *Socket) CloseWrite() error { return s.sink.Close() }

// CloseRead ends the incoming direction only.
func (s *Socket) CloseRead() error { return s.source.Close() }

func (s *Socket) Close() error {
	return multierr.Combine(s.sink.Close(), s.source.Close())
}

// Cancel cancels the exchange the socket came from.
func (s *Socket) Cancel() { s.e.Cancel() }
