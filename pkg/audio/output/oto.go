// ABOUTME: Oto-based audio output implementation
// ABOUTME: Feeds oto from a flushable queue with software volume control
package output

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/Resonate-Protocol/relay-go/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

const (
	// otoQueueMs is how much audio Write may queue ahead of the device
	otoQueueMs = 250
	// otoPlayerBufferMs is the player's own read-ahead
	otoPlayerBufferMs = 100
)

// oto only allows one context per process, so every Oto sink shares it
var (
	otoMu       sync.Mutex
	otoCtx      *oto.Context
	otoRate     int
	otoChannels int
)

func sharedContext(sampleRate, channels int) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoRate != sampleRate || otoChannels != channels {
			return nil, fmt.Errorf("oto context already open at %dHz %dch, cannot reopen at %dHz %dch",
				otoRate, otoChannels, sampleRate, channels)
		}
		return otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoCtx = ctx
	otoRate = sampleRate
	otoChannels = channels
	return ctx, nil
}

// Oto plays PCM through the system audio device.
//
// Player methods are never called with mu held: oto calls back into
// otoSource.Read under its own lock.
type Oto struct {
	mu       sync.Mutex
	space    *sync.Cond
	player   *oto.Player
	format   audio.Format
	queue    []byte
	capacity int

	consumed   int64  // bytes handed to oto
	generation uint64 // bumped by Flush
	lastFrames int64

	volume      int
	muted       bool
	stopped     bool
	interrupted bool

	releaseOnce sync.Once
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	o := &Oto{volume: 100}
	o.space = sync.NewCond(&o.mu)
	return o
}

// Configure opens the device
func (o *Oto) Configure(sampleRate, channels int) error {
	format := audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
	if format.FrameSize() <= 0 || sampleRate <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.player != nil {
		o.mu.Unlock()
		return errors.New("audio output already configured")
	}
	o.mu.Unlock()

	ctx, err := sharedContext(sampleRate, channels)
	if err != nil {
		return err
	}

	player := ctx.NewPlayer(&otoSource{o: o})
	player.SetBufferSize(int(format.MsToBytes(otoPlayerBufferMs)))

	o.mu.Lock()
	o.format = format
	o.capacity = int(format.MsToBytes(otoQueueMs))
	o.player = player
	o.mu.Unlock()

	player.Play()

	log.Printf("Audio output initialized: %dHz, %d channels", sampleRate, channels)
	return nil
}

// Write queues PCM, blocking while the queue is full. If the sink is
// flushed while a Write is blocked, the rest of that write is dropped.
func (o *Oto) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return 0, ErrNotConfigured
	}
	if o.stopped {
		return 0, ErrClosed
	}
	if o.interrupted {
		return 0, ErrInterrupted
	}

	frameSize := o.format.FrameSize()
	p = p[:len(p)-len(p)%frameSize]
	frames := len(p) / frameSize
	gen := o.generation

	for len(p) > 0 {
		for len(o.queue) >= o.capacity && !o.stopped && !o.interrupted && o.generation == gen {
			o.space.Wait()
		}
		if o.stopped {
			return 0, ErrClosed
		}
		if o.interrupted {
			return 0, ErrInterrupted
		}
		if o.generation != gen {
			return frames, nil
		}

		n := o.capacity - len(o.queue)
		if n > len(p) {
			n = len(p)
		}
		o.queue = append(o.queue, o.scale(p[:n])...)
		p = p[n:]
	}

	return frames, nil
}

// scale applies volume and mute; must be called with mu held
func (o *Oto) scale(p []byte) []byte {
	if o.muted {
		return audio.Silence(len(p))
	}
	if o.volume >= 100 {
		return p
	}

	samples := audio.DecodeS16LE(p)
	for i, s := range samples {
		samples[i] = int16(int32(s) * int32(o.volume) / 100)
	}
	return audio.EncodeS16LE(samples)
}

// Pause stops the device without dropping queued audio
func (o *Oto) Pause() error {
	player := o.currentPlayer()
	if player == nil {
		return ErrNotConfigured
	}
	player.Pause()
	return nil
}

// Resume continues after Pause
func (o *Oto) Resume() error {
	player := o.currentPlayer()
	if player == nil {
		return ErrNotConfigured
	}
	player.Play()
	return nil
}

// Flush drops our queue and oto's read-ahead
func (o *Oto) Flush() error {
	o.mu.Lock()
	o.queue = o.queue[:0]
	o.generation++
	o.space.Broadcast()
	player := o.player
	o.mu.Unlock()

	if player == nil {
		return nil
	}
	if _, err := player.Seek(0, io.SeekCurrent); err != nil {
		return fmt.Errorf("failed to flush player: %w", err)
	}
	return nil
}

// FramesPlayed returns frames oto has taken minus what it still buffers
func (o *Oto) FramesPlayed() int64 {
	o.mu.Lock()
	player := o.player
	consumed := o.consumed
	frameSize := int64(o.format.FrameSize())
	o.mu.Unlock()

	var frames int64
	if player != nil && frameSize > 0 {
		frames = (consumed - int64(player.BufferedSize())) / frameSize
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if frames < o.lastFrames {
		return o.lastFrames
	}
	o.lastFrames = frames
	return frames
}

// Interrupt wakes a Write blocked on a full queue, for example while the
// player is paused
func (o *Oto) Interrupt() {
	o.mu.Lock()
	o.interrupted = true
	o.space.Broadcast()
	o.mu.Unlock()
}

// Stop halts playback and fails any pending Write
func (o *Oto) Stop() error {
	o.mu.Lock()
	o.stopped = true
	o.space.Broadcast()
	player := o.player
	o.mu.Unlock()

	if player != nil {
		player.Pause()
	}
	return nil
}

// Release closes the player. The shared context stays open.
func (o *Oto) Release() error {
	var err error
	o.releaseOnce.Do(func() {
		o.Stop()

		o.mu.Lock()
		player := o.player
		o.player = nil
		o.queue = nil
		o.mu.Unlock()

		if player != nil {
			err = player.Close()
		}
	})
	return err
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Oto) currentPlayer() *oto.Player {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player
}

// otoSource is the reader oto pulls from. It never blocks: an empty queue
// yields silence at the device rather than stalling oto's mixer.
type otoSource struct {
	o *Oto
}

func (s *otoSource) Read(p []byte) (int, error) {
	o := s.o
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped && len(o.queue) == 0 {
		return 0, io.EOF
	}

	n := copy(p, o.queue)
	o.queue = o.queue[n:]
	o.consumed += int64(n)
	if n > 0 {
		o.space.Broadcast()
	}
	return n, nil
}

// Seek only supports reporting the current offset, which is all
// oto.Player.Seek needs to discard its buffer.
func (s *otoSource) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence != io.SeekCurrent {
		return 0, errors.New("audio queue only supports Seek(0, io.SeekCurrent)")
	}
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return s.o.consumed, nil
}
