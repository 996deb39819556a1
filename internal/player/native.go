package player

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/franz/earshelf/internal/util"
)

var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// initSpeaker opens the output device once. The first track's sample rate
// becomes the device rate; later tracks are resampled to it.
func initSpeaker(rate beep.SampleRate) error {
	if speakerInitialized {
		return nil
	}
	if err := speaker.Init(rate, rate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	speakerInitialized = true
	speakerSampleRate = rate
	return nil
}

// nativeBackend plays a track through an in-process decoder
type nativeBackend struct {
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	closed   atomic.Bool
}

// NewNativeBackend opens path with the in-process decoder for its
// extension. Formats without a decoder get util.ErrUnsupported so the
// caller can retry on the fallback path.
func NewNativeBackend(path string, ev BackendEvents) (Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("no decoder for %s: %w", filepath.Ext(path), util.ErrUnsupported)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if err := initSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		f.Close()
		return nil, err
	}

	b := &nativeBackend{file: f, streamer: streamer, format: format}

	an := newAnalyser(nativeWindow, nativeBins, ev.spectrum)
	tap := &tapStreamer{s: streamer, an: an}

	var source beep.Streamer = tap
	if format.SampleRate != speakerSampleRate {
		source = beep.Resample(4, format.SampleRate, speakerSampleRate, tap)
	}

	// The end callback runs inside the speaker loop; hand it off so the
	// engine can take the speaker lock while reacting.
	end := beep.Callback(func() {
		if !b.closed.Load() {
			go ev.trackEnded()
		}
	})

	b.ctrl = &beep.Ctrl{Streamer: beep.Seq(source, end), Paused: true}
	b.volume = &effects.Volume{Streamer: b.ctrl, Base: 2}
	speaker.Play(b.volume)

	return b, nil
}

func (b *nativeBackend) Play() error {
	speaker.Lock()
	b.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (b *nativeBackend) Pause() error {
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (b *nativeBackend) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	n := int(seconds * float64(b.format.SampleRate))
	if max := b.streamer.Len(); n >= max {
		n = max - 1
	}

	speaker.Lock()
	err := b.streamer.Seek(n)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	return nil
}

func (b *nativeBackend) SetVolume(level float64) error {
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

func (b *nativeBackend) Position() float64 {
	speaker.Lock()
	pos := b.streamer.Position()
	speaker.Unlock()
	return float64(pos) / float64(b.format.SampleRate)
}

func (b *nativeBackend) Duration() float64 {
	return float64(b.streamer.Len()) / float64(b.format.SampleRate)
}

func (b *nativeBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	speaker.Clear()
	err := b.streamer.Close()
	b.file.Close()
	return err
}

// tapStreamer passes samples through while feeding the analyser
type tapStreamer struct {
	s  beep.Streamer
	an *analyser
}

func (t *tapStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if n > 0 {
		t.an.pushStereo(samples[:n])
	}
	return n, ok
}

func (t *tapStreamer) Err() error {
	return t.s.Err()
}
