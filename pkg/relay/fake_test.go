// ABOUTME: Test doubles for the relay engine
// ABOUTME: Recording sinks, listeners and loopback UDP/TCP servers
package relay

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/audio/output"
	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
)

// fakeSink records every call. With autoPlay each write counts as played
// immediately; otherwise played only moves through setPlayed.
type fakeSink struct {
	mu        sync.Mutex
	autoPlay  bool
	rate      int
	channels  int
	writes    [][]byte
	played    int64
	paused    bool
	flushes   int
	stops     int
	releases  int
	interrupt int
	configErr error
}

func (s *fakeSink) Configure(sampleRate, channels int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configErr != nil {
		return s.configErr
	}
	s.rate = sampleRate
	s.channels = channels
	return nil
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releases > 0 {
		return 0, output.ErrClosed
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	channels := s.channels
	if channels == 0 {
		channels = 2
	}
	frames := len(p) / (2 * channels)
	if s.autoPlay {
		s.played += int64(frames)
	}
	return frames, nil
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeSink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeSink) FramesPlayed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

func (s *fakeSink) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupt++
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *fakeSink) setPlayed(frames int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = frames
}

func (s *fakeSink) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *fakeSink) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// countingSink is a real-time paced sink that counts writes
type countingSink struct {
	*output.Null
	writes atomic.Int64
}

func newCountingSink() *countingSink {
	return &countingSink{Null: output.NewNull()}
}

func (s *countingSink) Write(p []byte) (int, error) {
	s.writes.Add(1)
	return s.Null.Write(p)
}

// recordingListener keeps every event
type recordingListener struct {
	mu       sync.Mutex
	duration int64
	progress []int64
	ended    chan struct{}
	once     sync.Once
	known    chan struct{}
	knownOne sync.Once
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		duration: -1,
		ended:    make(chan struct{}),
		known:    make(chan struct{}),
	}
}

func (l *recordingListener) OnDurationKnown(ms int64) {
	l.mu.Lock()
	l.duration = ms
	l.mu.Unlock()
	l.knownOne.Do(func() { close(l.known) })
}

func (l *recordingListener) OnProgress(ms int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, ms)
}

func (l *recordingListener) OnStreamEnded() {
	l.once.Do(func() { close(l.ended) })
}

func (l *recordingListener) progressCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.progress)
}

func (l *recordingListener) progressSince(i int) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i > len(l.progress) {
		return nil
	}
	return append([]int64(nil), l.progress[i:]...)
}

// udpTestServer answers START by sending the given packets in order and
// reports every control message it sees
type udpTestServer struct {
	conn     net.PacketConn
	messages chan string
}

func startUDPServer(t *testing.T, packets []protocol.AudioPacket) *udpTestServer {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &udpTestServer{conn: conn, messages: make(chan string, 16)}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 64)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			msg := string(buf[:n])
			s.messages <- msg
			if msg != string(protocol.StartMessage) {
				continue
			}
			for _, pkt := range packets {
				conn.WriteTo(protocol.EncodePacket(pkt.Seq, pkt.Payload), addr)
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()
	return s
}

func (s *udpTestServer) addr() string {
	return s.conn.LocalAddr().String()
}

// tcpTestServer sends a header line then a paced stream of chunks and
// reports the directives it reads back
type tcpTestServer struct {
	ln         net.Listener
	directives chan string
}

func startTCPServer(t *testing.T, header string, chunk []byte, interval time.Duration) *tcpTestServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &tcpTestServer{ln: ln, directives: make(chan string, 32)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				s.directives <- strings.TrimSpace(scanner.Text())
			}
		}()

		if _, err := conn.Write([]byte(header)); err != nil {
			return
		}
		if chunk == nil {
			return
		}
		for {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
			time.Sleep(interval)
		}
	}()
	return s
}

func (s *tcpTestServer) addr() string {
	return s.ln.Addr().String()
}

func expectMessage(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// fastTiming keeps tests quick
func fastTiming() Timing {
	return Timing{
		PollInterval:     5 * time.Millisecond,
		ProgressInterval: 50 * time.Millisecond,
		ShutdownGrace:    10 * time.Millisecond,
		DrainStall:       100 * time.Millisecond,
	}
}
