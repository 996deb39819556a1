package player

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/franz/earshelf/internal/library"
	"github.com/franz/earshelf/internal/util"
)

const (
	fallbackRate  = 44100
	fallbackChunk = 2048 // frames per decode chunk
	fallbackQueue = 16   // buffered chunks between decoder and mixer
	pcmFrameBytes = 8    // f32le stereo
)

// fallbackBackend plays a track by running ffmpeg as a software decoder
// and feeding its raw f32le PCM into the speaker. Seeking restarts ffmpeg
// at the target offset.
type fallbackBackend struct {
	path string
	ev   BackendEvents
	an   *analyser

	ctrl   *beep.Ctrl
	volume *effects.Volume
	stream *pcmStreamer

	durationSec float64

	mu       sync.Mutex
	base     float64 // offset handed to ffmpeg on the last (re)start
	streamed atomic.Int64
	cancel   context.CancelFunc
	waited   chan struct{}

	closed atomic.Bool
}

// NewFallbackBackend opens path through ffmpeg. util.ErrNoBackend is
// returned when ffmpeg is not installed.
func NewFallbackBackend(path string, ev BackendEvents) (Backend, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", util.ErrNoBackend)
	}

	if err := initSpeaker(beep.SampleRate(fallbackRate)); err != nil {
		return nil, err
	}

	b := &fallbackBackend{path: path, ev: ev}
	b.an = newAnalyser(fallbackWindow, fallbackBins, ev.spectrum)

	// Duration comes from the probe; playback itself is unbounded
	if sec, err := library.ProbeDuration(path); err == nil {
		b.durationSec = float64(sec)
	}

	b.stream = &pcmStreamer{played: &b.streamed}

	end := beep.Callback(func() {
		if !b.closed.Load() {
			go b.ev.trackEnded()
		}
	})

	var source beep.Streamer = b.stream
	if speakerSampleRate != beep.SampleRate(fallbackRate) {
		source = beep.Resample(4, beep.SampleRate(fallbackRate), speakerSampleRate, b.stream)
	}
	b.ctrl = &beep.Ctrl{Streamer: beep.Seq(source, end), Paused: true}
	b.volume = &effects.Volume{Streamer: b.ctrl, Base: 2}

	b.mu.Lock()
	err := b.startDecodeLocked(0)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	speaker.Play(b.volume)
	return b, nil
}

// startDecodeLocked launches ffmpeg at the given offset and wires its
// output into the streamer. Caller holds b.mu.
func (b *fallbackBackend) startDecodeLocked(offset float64) error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "quiet",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", b.path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", "2",
		"-ar", strconv.Itoa(fallbackRate),
		"pipe:1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to pipe ffmpeg: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	src := make(chan [][2]float64, fallbackQueue)
	waited := make(chan struct{})

	b.cancel = cancel
	b.waited = waited
	b.base = offset
	b.streamed.Store(0)
	b.stream.swap(src)

	go func() {
		defer close(waited)
		defer cmd.Wait()
		defer close(src)

		r := bufio.NewReaderSize(stdout, fallbackChunk*pcmFrameBytes*2)
		raw := make([]byte, fallbackChunk*pcmFrameBytes)
		mono := make([]float64, fallbackChunk)

		for {
			n, err := io.ReadFull(r, raw)
			n -= n % pcmFrameBytes
			if n > 0 {
				frames := n / pcmFrameBytes
				chunk := make([][2]float64, frames)
				for i := 0; i < frames; i++ {
					l := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*pcmFrameBytes:])))
					rv := float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*pcmFrameBytes+4:])))
					chunk[i] = [2]float64{l, rv}
					mono[i] = (l + rv) / 2
				}
				b.an.pushMono(mono[:frames])

				select {
				case src <- chunk:
				case <-ctx.Done():
					return
				}
				b.ev.position(offset + float64(b.streamed.Load())/fallbackRate)
			}
			if err != nil {
				return
			}
		}
	}()

	return nil
}

// stopDecodeLocked tears down the running ffmpeg. Caller holds b.mu.
func (b *fallbackBackend) stopDecodeLocked() {
	if b.cancel != nil {
		b.cancel()
		<-b.waited
		b.cancel = nil
	}
}

func (b *fallbackBackend) Play() error {
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (b *fallbackBackend) Pause() error {
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (b *fallbackBackend) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if b.durationSec > 0 && seconds > b.durationSec {
		seconds = b.durationSec
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopDecodeLocked()
	return b.startDecodeLocked(seconds)
}

func (b *fallbackBackend) SetVolume(level float64) error {
	speaker.Lock()
	if level <= 0 {
		b.volume.Silent = true
	} else {
		b.volume.Silent = false
		b.volume.Volume = math.Log2(math.Min(level, 1))
	}
	speaker.Unlock()
	return nil
}

func (b *fallbackBackend) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + float64(b.streamed.Load())/fallbackRate
}

func (b *fallbackBackend) Duration() float64 {
	return b.durationSec
}

func (b *fallbackBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	speaker.Clear()
	b.mu.Lock()
	b.stopDecodeLocked()
	b.mu.Unlock()
	return nil
}

// pcmStreamer feeds decoded chunks to the mixer. When the decoder falls
// behind it emits silence instead of blocking the speaker; when its source
// channel closes and drains, the stream ends.
type pcmStreamer struct {
	mu     sync.Mutex
	src    chan [][2]float64
	buf    [][2]float64
	eof    bool
	played *atomic.Int64
}

// swap points the streamer at a fresh decode channel after a seek restart
func (s *pcmStreamer) swap(src chan [][2]float64) {
	s.mu.Lock()
	s.src = src
	s.buf = nil
	s.eof = false
	s.mu.Unlock()
}

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eof {
		return 0, false
	}

	filled := 0
	for filled < len(samples) {
		if len(s.buf) == 0 {
			select {
			case chunk, ok := <-s.src:
				if !ok {
					s.eof = true
					if filled == 0 {
						return 0, false
					}
					return filled, true
				}
				s.buf = chunk
			default:
				// underrun: pad with silence rather than stalling the mixer
				for i := filled; i < len(samples); i++ {
					samples[i] = [2]float64{}
				}
				return len(samples), true
			}
		}
		n := copy(samples[filled:], s.buf)
		s.buf = s.buf[n:]
		filled += n
		s.played.Add(int64(n))
	}
	return filled, true
}

func (s *pcmStreamer) Err() error {
	return nil
}
