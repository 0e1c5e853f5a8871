// ABOUTME: Datagram framing for best-effort streaming
// ABOUTME: Splits and builds [uint32 BE sequence][payload] packets
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// DefaultPort is used by both transports unless configured otherwise
	DefaultPort = 50007

	// SeqHeaderSize is the size of the sequence number prefix
	SeqHeaderSize = 4

	// DefaultPayloadSize is the PCM payload carried by each datagram
	DefaultPayloadSize = 1020

	// MaxDatagramSize bounds a single UDP read
	MaxDatagramSize = 65507
)

// Session control datagrams sent by the client
var (
	StartMessage = []byte("START")
	StopMessage  = []byte("STOP")
)

// AudioPacket is one sequence-numbered block of PCM received in a datagram
type AudioPacket struct {
	Seq     uint32
	Payload []byte
}

// ParsePacket splits a datagram into sequence number and payload.
// The payload is copied so the caller may reuse its read buffer.
func ParsePacket(data []byte) (AudioPacket, error) {
	if len(data) <= SeqHeaderSize {
		return AudioPacket{}, fmt.Errorf("datagram too short: %d bytes", len(data))
	}

	payload := make([]byte, len(data)-SeqHeaderSize)
	copy(payload, data[SeqHeaderSize:])

	return AudioPacket{
		Seq:     binary.BigEndian.Uint32(data[:SeqHeaderSize]),
		Payload: payload,
	}, nil
}

// EncodePacket builds the datagram for seq and payload
func EncodePacket(seq uint32, payload []byte) []byte {
	buf := make([]byte, SeqHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, seq)
	copy(buf[SeqHeaderSize:], payload)
	return buf
}
