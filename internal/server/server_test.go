// ABOUTME: Tests for the reference relay server
// ABOUTME: Covers UDP sequencing and STOP, TCP header and directives, and end to end sessions
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/Resonate-Protocol/relay-go/pkg/relay"
	"github.com/matryer/is"
)

func startServer(t *testing.T, config Config) *Server {
	t.Helper()
	config.BindAddress = "127.0.0.1"

	srv, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Start: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return srv
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Mode: "tcp"}); err == nil {
		t.Error("expected error without a source")
	}
	if _, err := New(Config{Mode: "http", Source: NewToneSource(440, 8000, 1, 100)}); err == nil {
		t.Error("expected error for unknown mode")
	}

	srv, err := New(Config{Mode: "udp", PayloadSize: 1021, Source: NewToneSource(440, 8000, 2, 100)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if srv.config.PayloadSize != 1020 {
		t.Errorf("expected payload trimmed to whole frames, got %d", srv.config.PayloadSize)
	}
}

func TestStopEndsStart(t *testing.T) {
	srv, err := New(Config{Mode: "tcp", BindAddress: "127.0.0.1", Source: NewToneSource(440, 8000, 1, 100)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()
	<-srv.Ready()

	srv.Stop()
	srv.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestUDPStreamsSequencedPayloads(t *testing.T) {
	is := is.New(t)
	// 300ms of 8kHz mono in 10ms payloads, all inside the lead
	srv := startServer(t, Config{
		Mode:        "udp",
		PayloadSize: 160,
		Lead:        time.Second,
		Source:      NewToneSource(440, 8000, 1, 300),
	})

	conn, err := net.Dial("udp", srv.Addr().String())
	is.NoErr(err)
	defer conn.Close()

	_, err = conn.Write(protocol.StartMessage)
	is.NoErr(err)

	buf := make([]byte, 2048)
	for want := uint32(0); want < 30; want++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		is.NoErr(err)

		packet, err := protocol.ParsePacket(buf[:n])
		is.NoErr(err)
		is.Equal(packet.Seq, want)
		is.Equal(len(packet.Payload), 160)
	}

	// nothing after the end of the source
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = conn.Read(buf)
	is.True(protocol.IsTimeout(err))

	_, err = conn.Write(protocol.StopMessage)
	is.NoErr(err)
}

func TestUDPStopHaltsStream(t *testing.T) {
	is := is.New(t)
	// one payload per 10ms with no lead beyond the first packet
	srv := startServer(t, Config{
		Mode:        "udp",
		PayloadSize: 160,
		Lead:        time.Millisecond,
		Source:      NewToneSource(440, 8000, 1, 10000),
	})

	conn, err := net.Dial("udp", srv.Addr().String())
	is.NoErr(err)
	defer conn.Close()

	conn.Write(protocol.StartMessage)
	buf := make([]byte, 2048)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	is.NoErr(err)

	conn.Write(protocol.StopMessage)
	time.Sleep(100 * time.Millisecond)

	// drain what was in flight, then expect silence on the wire
	for {
		conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		if _, err := conn.Read(buf); err != nil {
			is.True(protocol.IsTimeout(err))
			break
		}
	}
}

func TestTCPHeaderPauseSeek(t *testing.T) {
	is := is.New(t)
	// 2s of 8kHz mono: 16 bytes per millisecond
	srv := startServer(t, Config{
		Mode:    "tcp",
		ChunkMs: 100,
		Lead:    500 * time.Millisecond,
		Source:  NewToneSource(440, 8000, 1, 2000),
	})

	conn, err := net.Dial("tcp", srv.Addr().String())
	is.NoErr(err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := protocol.ReadHeaderLine(reader)
	is.NoErr(err)
	header, err := protocol.ParseHeader(line)
	is.NoErr(err)
	is.Equal(header.SampleRate, 8000)
	is.Equal(header.Channels, 1)
	is.Equal(header.Duration(), int64(2000))

	_, err = conn.Write(protocol.FormatDirective(protocol.Pause()))
	is.NoErr(err)
	time.Sleep(100 * time.Millisecond)

	// drain in-flight audio; a paused server goes quiet
	buf := make([]byte, 4096)
	drained := 0
	for {
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		n, err := reader.Read(buf)
		drained += n
		if err != nil {
			is.True(protocol.IsTimeout(err))
			break
		}
	}
	is.True(drained < 32000)

	conn.SetReadDeadline(time.Time{})
	_, err = conn.Write(protocol.FormatDirective(protocol.Seek(1500)))
	is.NoErr(err)
	_, err = conn.Write(protocol.FormatDirective(protocol.Play()))
	is.NoErr(err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	rest, err := io.ReadAll(reader)
	is.NoErr(err)
	is.Equal(len(rest), 500*16)
}

func TestTCPIgnoresUnknownDirectives(t *testing.T) {
	is := is.New(t)
	srv := startServer(t, Config{
		Mode:   "tcp",
		Lead:   time.Second,
		Source: NewToneSource(440, 8000, 1, 200),
	})

	conn, err := net.Dial("tcp", srv.Addr().String())
	is.NoErr(err)
	defer conn.Close()

	conn.Write([]byte("REWIND\nSEEK_abc\n"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	all, err := io.ReadAll(conn)
	is.NoErr(err)

	line, _, found := cutLine(all)
	is.True(found)
	_, err = protocol.ParseHeader(line)
	is.NoErr(err)
	is.Equal(len(all)-len(line)-1, 200*16)
}

func cutLine(data []byte) ([]byte, []byte, bool) {
	for i, b := range data {
		if b == '\n' {
			return data[:i], data[i+1:], true
		}
	}
	return nil, data, false
}

func TestTCPClientEndToEnd(t *testing.T) {
	is := is.New(t)
	srv := startServer(t, Config{
		Mode:   "tcp",
		Lead:   time.Second,
		Source: NewToneSource(440, 8000, 2, 400),
	})

	durations := make(chan int64, 1)
	ended := make(chan struct{})
	listener := relay.ListenerFuncs{
		DurationKnown: func(ms int64) { durations <- ms },
		StreamEnded:   func() { close(ended) },
	}

	client := relay.NewTCPClient(relay.TCPConfig{ServerAddr: srv.Addr().String()}, output.NewNull(), listener)
	is.NoErr(client.Start(context.Background()))
	defer client.Close()

	select {
	case ms := <-durations:
		is.Equal(ms, int64(400))
	case <-time.After(2 * time.Second):
		t.Fatal("duration never announced")
	}

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never ended")
	}

	client.Wait()
	is.NoErr(client.Err())
	is.Equal(client.Stats().BytesReceived, int64(8000*4*400/1000))
}

func TestUDPClientEndToEnd(t *testing.T) {
	is := is.New(t)
	srv := startServer(t, Config{
		Mode:        "udp",
		PayloadSize: 320,
		Lead:        time.Second,
		Source:      NewToneSource(440, 8000, 2, 400),
	})

	ended := make(chan struct{})
	listener := relay.ListenerFuncs{StreamEnded: func() { close(ended) }}

	client := relay.NewUDPClient(relay.UDPConfig{
		ServerAddr:     srv.Addr().String(),
		SampleRate:     8000,
		Channels:       2,
		PayloadSize:    320,
		TargetFill:     5,
		ReceiveTimeout: 50 * time.Millisecond,
		IdleTimeout:    300 * time.Millisecond,
	}, output.NewNull(), listener)
	is.NoErr(client.Start(context.Background()))
	defer client.Close()

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never ended")
	}

	client.Wait()
	is.NoErr(client.Err())
	stats := client.Stats()
	is.True(stats.PacketsReceived > 0)
	is.True(stats.PacketsPlayed > 0)
}
