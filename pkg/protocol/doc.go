// ABOUTME: Relay wire protocol package
// ABOUTME: Defines datagram framing, the stream header line, and control directives
// Package protocol implements the relay wire protocol.
//
// Two transports share it:
//   - Best-effort (UDP): each datagram is a 4-byte big-endian sequence number
//     followed by a fixed-size raw PCM payload. The client opens a session by
//     sending the literal START and may end it with STOP.
//   - Reliable (TCP): the server sends one newline-terminated JSON header,
//     then raw PCM until it closes the connection. The client may send
//     PAUSE, PLAY and SEEK_<ms> directives on the same connection.
//
// Example:
//
//	pkt, err := protocol.ParsePacket(datagram)
//	header, err := protocol.ParseHeader(line)
//	_, err = conn.Write(protocol.FormatDirective(protocol.Seek(60000)))
package protocol
