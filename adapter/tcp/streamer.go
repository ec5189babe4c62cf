// Package tcp implements a line-delimited TCP streaming sink: every event
// is marshaled to one line and written to a persistent outbound connection,
// reconnecting on write failure. Grounded on the usage shape of
// antevents.tcpstreamer.TcpStreamObserver (tests/test_tcp_stream.py wires
// one into a Scheduler exactly like any other blocking subscriber) and
// wired through pkg/sink's blocking bridge the same way adapter/csv is.
package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
)

// LineMarshaler renders one event as a single line (without the trailing
// newline, which Streamer adds).
type LineMarshaler func(event stream.Event) (string, error)

// Streamer is a sink.Handler that writes one line per event to a TCP
// connection, dialing lazily on first use and redialing once on a write
// error before giving up and surfacing it.
type Streamer struct {
	addr      string
	marshal   LineMarshaler
	dialer    net.Dialer
	dialTimeout time.Duration
	logger    zerolog.Logger

	conn net.Conn
}

// NewStreamer builds a Streamer targeting addr (host:port). dialTimeout <=
// 0 picks a five-second default.
func NewStreamer(addr string, marshal LineMarshaler, dialTimeout time.Duration, logger zerolog.Logger) *Streamer {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Streamer{addr: addr, marshal: marshal, dialTimeout: dialTimeout, logger: logger}
}

func (s *Streamer) String() string { return fmt.Sprintf("tcp_streamer(%s)", s.addr) }

func (s *Streamer) ensureConn() error {
	if s.conn != nil {
		return nil
	}
	s.dialer.Timeout = s.dialTimeout
	conn, err := s.dialer.Dial("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcp streamer: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return nil
}

// OnNext implements sink.Handler: marshal and write one line, reconnecting
// once on failure before dropping the event and logging it.
func (s *Streamer) OnNext(topic string, event stream.Event) {
	line, err := s.marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", s.addr).Msg("dropping event that failed to marshal")
		return
	}

	if err := s.writeLine(line); err != nil {
		s.logger.Warn().Err(err).Str("addr", s.addr).Msg("write failed, reconnecting")
		s.closeConn()
		if err := s.writeLine(line); err != nil {
			s.logger.Error().Err(err).Str("addr", s.addr).Msg("write failed after reconnect, dropping event")
		}
	}
}

func (s *Streamer) writeLine(line string) error {
	if err := s.ensureConn(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(s.conn, "%s\n", line)
	if err != nil {
		s.closeConn()
	}
	return err
}

func (s *Streamer) closeConn() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Streamer) OnCompleted(topic string) {}
func (s *Streamer) OnError(topic string, err error) {}

// Close implements sink.Handler.
func (s *Streamer) Close() error {
	s.closeConn()
	return nil
}
