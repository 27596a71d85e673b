// Package audio captures microphone input for a lecture session and
// emits fixed-cadence PCM chunks.
package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/classlive/platform/internal/errors"
)

// Chunk is one fixed-interval capture frame, LINEAR16 little-endian.
type Chunk struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Session captures from the default input device. One session exists
// per recording; the capture loop runs on its own goroutine and only
// produces chunks, never touching other components' state.
type Session struct {
	sampleRate    int
	chunkInterval time.Duration
	outCh         chan Chunk

	mu      sync.Mutex
	running bool
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	seq     uint64
}

// NewSession creates a capture session. chunkInterval fixes the cadence
// of emitted chunks.
func NewSession(sampleRate int, chunkInterval time.Duration) *Session {
	return &Session{
		sampleRate:    sampleRate,
		chunkInterval: chunkInterval,
		outCh:         make(chan Chunk, 64),
	}
}

// Output returns the channel for receiving captured chunks.
func (s *Session) Output() <-chan Chunk { return s.outCh }

// Start opens the default microphone and begins capturing. Permission
// denials are fatal and require explicit user action before retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		s.reset()
		return classifyDeviceError(err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		s.reset()
		return classifyDeviceError(err)
	}

	frames := framesPerChunk(s.sampleRate, s.chunkInterval)
	buf := make([]int16, frames)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: frames,
	}, buf)
	if err != nil {
		_ = portaudio.Terminate()
		s.reset()
		return classifyDeviceError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		s.reset()
		return classifyDeviceError(err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stream = stream
	s.cancel = cancel
	s.mu.Unlock()

	slog.Info("audio capture started",
		"device", dev.Name, "sample_rate", s.sampleRate, "chunk_interval", s.chunkInterval)

	go s.readLoop(sctx, stream, buf)
	return nil
}

func (s *Session) readLoop(ctx context.Context, stream *portaudio.Stream, buf []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			slog.Debug("audio read error", "error", err)
			return
		}

		s.mu.Lock()
		s.seq++
		seq := s.seq
		s.mu.Unlock()

		chunk := Chunk{
			Seq:        seq,
			Data:       encodePCM(buf),
			CapturedAt: time.Now(),
		}

		select {
		case s.outCh <- chunk:
		default:
			slog.Debug("capture buffer full, dropping chunk", "seq", seq)
		}
	}
}

// Stop releases the audio device. Safe to call from any state and on
// every exit path.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		s.stream = nil
		_ = portaudio.Terminate()
	}
	s.running = false
	s.seq = 0
}

func (s *Session) reset() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// framesPerChunk converts the chunk cadence into a portaudio frame
// count.
func framesPerChunk(sampleRate int, interval time.Duration) int {
	frames := int(float64(sampleRate) * interval.Seconds())
	if frames < 1 {
		frames = 1
	}
	return frames
}

// encodePCM renders mono int16 samples as LINEAR16 little-endian bytes.
func encodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// classifyDeviceError separates permission denials, which need user
// action, from other device failures.
func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"permission", "denied", "not authorized", "unauthorized"} {
		if strings.Contains(msg, marker) {
			return errors.Wrap(err, errors.CodeAudioPermission, "microphone access denied").
				WithRemediation("Grant microphone permission in system settings, then start the session again.")
		}
	}
	return errors.Wrap(err, errors.CodeAudioDevice, "audio device unavailable").
		WithRemediation("Check that a microphone is connected and not in use by another application.")
}
