// ABOUTME: Tests for datagram framing
// ABOUTME: Verifies sequence prefix parsing and payload copying
package protocol

import (
	"bytes"
	"testing"
)

func TestParsePacket(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, 0x02, 0xAA, 0xBB, 0xCC}

	pkt, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if pkt.Seq != 258 {
		t.Errorf("expected seq 258, got %d", pkt.Seq)
	}

	if !bytes.Equal(pkt.Payload, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("unexpected payload: %v", pkt.Payload)
	}

	// Payload must not alias the read buffer
	data[4] = 0x00
	if pkt.Payload[0] != 0xAA {
		t.Error("payload shares memory with the datagram buffer")
	}
}

func TestParsePacketTooShort(t *testing.T) {
	tests := [][]byte{
		nil,
		{0x00},
		{0x00, 0x00, 0x00, 0x01},
	}

	for _, data := range tests {
		if _, err := ParsePacket(data); err == nil {
			t.Errorf("expected error for %d-byte datagram", len(data))
		}
	}
}

func TestEncodePacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7F}, DefaultPayloadSize)

	data := EncodePacket(0xDEADBEEF, payload)
	if len(data) != SeqHeaderSize+DefaultPayloadSize {
		t.Fatalf("expected %d bytes, got %d", SeqHeaderSize+DefaultPayloadSize, len(data))
	}

	if !bytes.Equal(data[:4], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("sequence not big-endian: %x", data[:4])
	}

	pkt, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.Seq != 0xDEADBEEF {
		t.Errorf("expected seq 0xDEADBEEF, got %#x", pkt.Seq)
	}
}

func TestSessionMessages(t *testing.T) {
	if len(StartMessage) != 5 || string(StartMessage) != "START" {
		t.Errorf("unexpected start message %q", StartMessage)
	}
	if string(StopMessage) != "STOP" {
		t.Errorf("unexpected stop message %q", StopMessage)
	}
}
