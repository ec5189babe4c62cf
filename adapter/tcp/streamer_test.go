package tcp

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cuemby/thingflow/pkg/sink"
	"github.com/cuemby/thingflow/pkg/stream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerWritesOneLinePerEvent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	lines := make(chan string, 10)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	marshal := func(event stream.Event) (string, error) {
		return fmt.Sprintf("%v", event), nil
	}
	streamer := NewStreamer(ln.Addr().String(), marshal, time.Second, zerolog.Nop())
	br := sink.New("tcp-out", []string{"default"}, streamer, zerolog.Nop(), 4)

	up := stream.NewBase("up", []string{"default"}, zerolog.Nop())
	_, err = up.Subscribe(br, "default", "default")
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- br.Run() }()

	require.NoError(t, up.DispatchNext(42, "default"))
	require.NoError(t, up.DispatchCompleted("default"))
	require.NoError(t, <-runDone)

	select {
	case line := <-lines:
		assert.Equal(t, "42", line)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive line over tcp")
	}
}
