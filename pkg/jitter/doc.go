// ABOUTME: Jitter buffer package
// ABOUTME: Reorders sequence-numbered packets before playback
// Package jitter provides an ordered holding area for packets received over
// an unordered transport.
//
// Packets are kept in a binary min-heap keyed by sequence number, so
// insertion costs O(log n) no matter how far out of order a packet arrives.
// The buffer never drops or deduplicates on insert: deciding whether a packet
// is stale belongs to the consumer, which knows its playback cursor.
//
// Example:
//
//	buf := jitter.New()
//	buf.Push(pkt)
//	if next, ok := buf.Peek(); ok && next.Seq == expected {
//	    buf.Pop()
//	}
package jitter
