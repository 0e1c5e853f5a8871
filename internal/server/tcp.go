// ABOUTME: Reliable TCP serving
// ABOUTME: Sends the JSON header then paced PCM chunks, obeying PAUSE, PLAY and SEEK
package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/google/uuid"
)

// serveTCP accepts clients until the listener closes
func (s *Server) serveTCP(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}

		s.metrics.ServerSessions.WithLabelValues("tcp").Inc()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleTCP(ctx, conn)
		}()
	}
}

// handleTCP runs one reliable session
func (s *Server) handleTCP(ctx context.Context, conn net.Conn) {
	id := shortID(uuid.New().String())
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock writes and the directive reader on shutdown
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Printf("[%s] Client connected: %s", id, conn.RemoteAddr())

	if _, err := conn.Write(protocol.FormatHeader(s.config.Source.Header())); err != nil {
		log.Printf("[%s] Failed to send header: %v", id, err)
		return
	}

	directives := make(chan protocol.Directive, 16)
	go s.readDirectives(ctx, cancel, conn, id, directives)

	s.streamTCP(ctx, conn, id, directives)
}

// readDirectives parses control lines until the client goes away
func (s *Server) readDirectives(ctx context.Context, cancel context.CancelFunc, conn net.Conn, id string, out chan<- protocol.Directive) {
	defer cancel()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		directive, err := protocol.ParseDirective(scanner.Text())
		if err != nil {
			log.Printf("[%s] %v", id, err)
			continue
		}

		s.metrics.ServerDirectives.WithLabelValues(directive.Command).Inc()

		select {
		case out <- directive:
		case <-ctx.Done():
			return
		}
	}
}

// streamTCP writes the source in chunks until the end, a write failure or ctx
func (s *Server) streamTCP(ctx context.Context, conn net.Conn, id string, directives <-chan protocol.Directive) {
	source := s.config.Source
	format := source.Format()
	chunkSize := int(format.MsToBytes(int64(s.config.ChunkMs)))
	chunkDur := time.Duration(s.config.ChunkMs) * time.Millisecond

	p := newPacer(s.config.Lead)
	offset := 0
	paused := false

	apply := func(d protocol.Directive) {
		switch d.Command {
		case protocol.CommandPause:
			paused = true
			log.Printf("[%s] Paused", id)
		case protocol.CommandPlay:
			if paused {
				paused = false
				p.reset()
			}
			log.Printf("[%s] Playing", id)
		case protocol.CommandSeek:
			offset = source.Offset(d.TargetMs)
			p.reset()
			log.Printf("[%s] Seek to %dms", id, d.TargetMs)
		}
	}

	for {
		if paused {
			select {
			case <-ctx.Done():
				return
			case d := <-directives:
				apply(d)
			}
			continue
		}

		if offset >= source.Len() {
			log.Printf("[%s] End of source", id)
			return
		}

		select {
		case <-ctx.Done():
			return
		case d := <-directives:
			apply(d)
			continue
		case <-time.After(max(p.delay(), 0)):
		}

		chunk := source.Slice(offset, chunkSize)
		if _, err := conn.Write(chunk); err != nil {
			if ctx.Err() == nil {
				log.Printf("[%s] Client disconnected: %v", id, err)
			}
			return
		}

		s.metrics.ServerBytesSent.Add(float64(len(chunk)))
		offset += len(chunk)
		p.advance(chunkDur)
	}
}
