package player

// Backend decodes one loaded track and drives the output device. A backend
// owns every resource tied to its track (file handles, decoder state,
// subprocesses, analysis loops) and releases all of them on Close; the
// engine never reuses a backend across tracks.
type Backend interface {
	// Play starts or resumes output
	Play() error

	// Pause halts output without releasing the track
	Pause() error

	// Seek moves playback to the given offset in seconds
	Seek(seconds float64) error

	// SetVolume sets the output level, 0 (silent) to 1 (full)
	SetVolume(level float64) error

	// Position returns the current playback offset in seconds
	Position() float64

	// Duration returns the track length in seconds, 0 when unknown
	Duration() float64

	// Close stops output and releases every track resource
	Close() error
}

// BackendEvents carries the callbacks a backend fires while playing.
// TrackEnded fires exactly once when the track plays out naturally, never
// on Close or Seek. Position is only pushed by backends that decode in
// software and know their offset continuously; the engine polls Position()
// for the rest. Spectrum delivers one normalized bin frame per analysis
// window. Nil callbacks are skipped.
type BackendEvents struct {
	TrackEnded func()
	Position   func(seconds float64)
	Spectrum   func(bins []float64)
}

func (ev BackendEvents) trackEnded() {
	if ev.TrackEnded != nil {
		ev.TrackEnded()
	}
}

func (ev BackendEvents) position(seconds float64) {
	if ev.Position != nil {
		ev.Position(seconds)
	}
}

func (ev BackendEvents) spectrum(bins []float64) {
	if ev.Spectrum != nil {
		ev.Spectrum(bins)
	}
}

// BackendFactory opens a backend for one audio file. Implementations load
// the track paused at offset zero; the engine calls Play when ready.
type BackendFactory func(path string, ev BackendEvents) (Backend, error)
