// ABOUTME: Tests for the command channel
// ABOUTME: Covers directive queueing, overflow and the pause gate
package relay

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/matryer/is"
)

func TestCommandSenderWritesDirectives(t *testing.T) {
	is := is.New(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var stats counters
	s := newCommandSender(client, 4, time.Second, "test", &stats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	s.enqueue(protocol.Pause())
	s.enqueue(protocol.Seek(1500))
	s.enqueue(protocol.Play())

	reader := bufio.NewReader(server)
	for _, want := range []string{"PAUSE", "SEEK_1500", "PLAY"} {
		line, err := reader.ReadString('\n')
		is.NoErr(err)
		is.Equal(strings.TrimSpace(line), want)
	}

	deadline := time.Now().Add(time.Second)
	for stats.commandsSent.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	is.Equal(stats.commandsSent.Load(), int64(3))
}

func TestCommandSenderQueueFullDrops(t *testing.T) {
	is := is.New(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var stats counters
	s := newCommandSender(client, 2, time.Second, "test", &stats)

	// no sender running: the third enqueue must not block
	done := make(chan struct{})
	go func() {
		s.enqueue(protocol.Pause())
		s.enqueue(protocol.Play())
		s.enqueue(protocol.Pause())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	is.Equal(stats.commandsDropped.Load(), int64(1))
}

func TestCommandSenderWriteTimeout(t *testing.T) {
	is := is.New(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var stats counters
	s := newCommandSender(client, 4, 20*time.Millisecond, "test", &stats)

	// nobody reads the pipe, so the write deadline expires
	s.send(protocol.Pause())
	is.Equal(stats.commandsDropped.Load(), int64(1))
	is.Equal(stats.commandsSent.Load(), int64(0))
}

func TestPauseGate(t *testing.T) {
	is := is.New(t)
	var g pauseGate

	is.True(g.wait(context.Background()))
	is.True(g.pause())
	is.True(!g.pause())
	is.True(g.isPaused())

	released := make(chan bool, 1)
	go func() {
		released <- g.wait(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("wait returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	is.True(g.resume())
	is.True(!g.resume())
	select {
	case ok := <-released:
		is.True(ok)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestPauseGateCancelled(t *testing.T) {
	var g pauseGate
	g.pause()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		result <- g.wait(ctx)
	}()
	cancel()

	select {
	case ok := <-result:
		if ok {
			t.Error("expected wait to report cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("wait ignored cancellation")
	}
}

func TestPauseGateWaitsForWriteInFlight(t *testing.T) {
	is := is.New(t)
	var g pauseGate

	is.True(g.enter(context.Background()))

	paused := make(chan bool, 1)
	go func() {
		paused <- g.pause()
	}()

	select {
	case <-paused:
		t.Fatal("pause returned while a write was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	g.leave()
	select {
	case ok := <-paused:
		is.True(ok)
	case <-time.After(time.Second):
		t.Fatal("pause did not return after the write finished")
	}

	// the next write waits for resume
	entered := make(chan bool, 1)
	go func() {
		entered <- g.enter(context.Background())
	}()
	select {
	case <-entered:
		t.Fatal("enter returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	is.True(g.resume())
	select {
	case ok := <-entered:
		is.True(ok)
		g.leave()
	case <-time.After(time.Second):
		t.Fatal("enter did not return after resume")
	}
}
