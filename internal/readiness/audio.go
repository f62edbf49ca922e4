package readiness

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

// Errors an AudioInput implementation returns from Open. They map onto
// the microphone failure codes.
var (
	ErrMicrophoneDenied   = errors.New("microphone permission denied")
	ErrMicrophoneNotFound = errors.New("no microphone found")
	ErrMicrophoneBusy     = errors.New("microphone is in use by another application")
)

// AudioInput opens a capture stream. Implementations wrap whatever audio
// source the host provides; tests inject scripted ones.
type AudioInput interface {
	Open(ctx context.Context) (AudioStream, error)
}

// AudioStream yields instantaneous input levels on a 0-100 scale.
type AudioStream interface {
	Level() (float64, error)
	Close() error
}

func checkMicrophone(ctx context.Context, input AudioInput) (AudioStream, *CheckError) {
	stream, err := input.Open(ctx)
	if err == nil {
		return stream, nil
	}
	switch {
	case errors.Is(err, ErrMicrophoneDenied):
		return nil, newCheckError(CodeMicrophoneDenied,
			"microphone permission was denied",
			"Allow microphone access in the system or browser settings, then retry.", err)
	case errors.Is(err, ErrMicrophoneNotFound):
		return nil, newCheckError(CodeMicrophoneNotFound,
			"no microphone was found",
			"Connect a microphone or headset and retry.", err)
	case errors.Is(err, ErrMicrophoneBusy):
		return nil, newCheckError(CodeMicrophoneBusy,
			"the microphone is in use by another application",
			"Close other applications using the microphone and retry.", err)
	default:
		return nil, newCheckError(CodeCheckFailed,
			"could not open the microphone",
			"Retry; if the problem persists, check the audio device.", err)
	}
}

// sampleAudioLevel polls the stream for the whole window and keeps the
// loudest reading. A warning rather than a failure comes back when the
// peak stays below the silence threshold: the device works, the user
// just is not speaking into it. A peak exactly at the threshold passes.
func sampleAudioLevel(ctx context.Context, stream AudioStream, window, interval time.Duration, threshold float64) (float64, *CheckError) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	var peak float64
	for {
		select {
		case <-ctx.Done():
			return peak, newCheckError(CodeCheckFailed, "audio sampling cancelled", "", ctx.Err())
		case <-deadline.C:
			if peak < threshold {
				return peak, newCheckError(CodeAudioSilent,
					"no sound was detected from the microphone",
					"Speak into the microphone during the test, or pick a different input device.", nil)
			}
			return peak, nil
		case <-ticker.C:
			level, err := stream.Level()
			if err != nil {
				return peak, newCheckError(CodeCheckFailed, "audio sampling failed", "", err)
			}
			if level > peak {
				peak = level
			}
		}
	}
}

// PCMAudioInput adapts a raw little-endian 16-bit mono PCM source, such
// as a pipe from an OS capture utility, into an AudioInput.
type PCMAudioInput struct {
	Source io.Reader
}

func (p *PCMAudioInput) Open(context.Context) (AudioStream, error) {
	if p.Source == nil {
		return nil, ErrMicrophoneNotFound
	}
	return &pcmStream{r: p.Source, frame: make([]byte, 2048)}, nil
}

type pcmStream struct {
	r     io.Reader
	frame []byte
}

// Level reads one frame and reports its RMS amplitude scaled to 0-100.
func (s *pcmStream) Level() (float64, error) {
	n, err := io.ReadFull(s.r, s.frame)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, err
	}
	samples := n / 2
	if samples == 0 {
		return 0, nil
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(s.frame[i*2:]))
		f := float64(v)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(samples))
	return rms / math.MaxInt16 * 100, nil
}

func (s *pcmStream) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
