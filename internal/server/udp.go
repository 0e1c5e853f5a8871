// ABOUTME: Best-effort UDP serving
// ABOUTME: Answers START with sequence-numbered datagrams and honours STOP
package server

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
	"github.com/google/uuid"
)

// serveUDP handles control datagrams until the socket closes
func (s *Server) serveUDP(ctx context.Context) {
	buf := make([]byte, 1024)

	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("UDP read error: %v", err)
			continue
		}

		message := bytes.TrimSpace(buf[:n])
		switch {
		case bytes.Equal(message, protocol.StartMessage):
			s.startUDPSession(ctx, addr)
		case bytes.Equal(message, protocol.StopMessage):
			s.stopUDPSession(addr)
		default:
			log.Printf("Ignoring %d-byte datagram from %s", n, addr)
		}
	}
}

// startUDPSession begins streaming to addr; a repeated START restarts from the top
func (s *Server) startUDPSession(ctx context.Context, addr *net.UDPAddr) {
	key := addr.String()
	sessionCtx, cancel := context.WithCancel(ctx)

	s.sessionsMu.Lock()
	if previous, ok := s.udpSessions[key]; ok {
		previous()
		log.Printf("Client reconnected: %s", key)
	}
	s.udpSessions[key] = cancel
	s.sessionsMu.Unlock()

	s.metrics.ServerSessions.WithLabelValues("udp").Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.streamUDP(sessionCtx, addr)

		s.sessionsMu.Lock()
		// a cancelled session was replaced or stopped and no longer owns the entry
		if sessionCtx.Err() == nil {
			delete(s.udpSessions, key)
		}
		s.sessionsMu.Unlock()
		cancel()
	}()
}

func (s *Server) stopUDPSession(addr *net.UDPAddr) {
	key := addr.String()

	s.sessionsMu.Lock()
	cancel, ok := s.udpSessions[key]
	delete(s.udpSessions, key)
	s.sessionsMu.Unlock()

	if ok {
		cancel()
		log.Printf("Client stopped: %s", key)
	}
}

// streamUDP sends the whole source to addr, paced to real time
func (s *Server) streamUDP(ctx context.Context, addr *net.UDPAddr) {
	id := shortID(uuid.New().String())
	source := s.config.Source
	format := source.Format()
	payloadDur := time.Duration(s.config.PayloadSize) * time.Second / time.Duration(format.BytesPerSecond())

	log.Printf("[%s] Streaming to %s (%d-byte payloads)", id, addr, s.config.PayloadSize)

	p := newPacer(s.config.Lead)
	var seq uint32
	offset := 0

	for offset < source.Len() {
		if !p.wait(ctx) {
			log.Printf("[%s] Stopped after %d packets", id, seq)
			return
		}

		payload := source.Slice(offset, s.config.PayloadSize)
		if _, err := s.udpConn.WriteToUDP(protocol.EncodePacket(seq, payload), addr); err != nil {
			log.Printf("[%s] Send error: %v", id, err)
			return
		}

		s.metrics.ServerPacketsSent.Inc()
		offset += len(payload)
		seq++
		p.advance(payloadDur)
	}

	log.Printf("[%s] Finished streaming %d packets to %s", id, seq, addr)
}
