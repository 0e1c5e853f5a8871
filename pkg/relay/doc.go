// ABOUTME: Streaming client engine for raw PCM relay servers
// ABOUTME: Best-effort UDP and reliable TCP clients sharing one lifecycle
// Package relay plays a real-time PCM stream pushed by a relay server.
//
// Two clients are provided:
//
//   - UDPClient: best-effort mode. Sequence-numbered datagrams are reordered
//     in a jitter buffer, missing packets are concealed with silence and
//     late packets are discarded.
//   - TCPClient: reliable mode. A JSON header line is followed by raw PCM;
//     Pause, Resume and Seek are relayed back to the server and the playback
//     position is tracked across seeks.
//
// Both clients start their workers from Start and return immediately.
// Shutdown is idempotent; the audio sink is released exactly once by the
// playback worker.
//
// Example:
//
//	client := relay.NewTCPClient(relay.TCPConfig{ServerAddr: "host:50007"},
//		output.NewOto(), relay.NopListener{})
//	if err := client.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//	client.Seek(60000)
package relay
