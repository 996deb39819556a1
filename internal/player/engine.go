// Package player drives audio playback: it resolves each track to a
// backend, runs the transport state machine, and reports progress through
// one event channel.
package player

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/earshelf/internal/queue"
	"github.com/franz/earshelf/internal/report"
	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

// State is the engine transport state
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// EventType tags engine events
type EventType int

const (
	EventStateChanged EventType = iota
	EventPosition
	EventSpectrum
	EventTrackEnded
	EventError
)

// Event is one engine notification. Position and Duration are seconds.
type Event struct {
	Type     EventType
	State    State
	TrackID  int64
	Position float64
	Duration float64
	Spectrum []float64
	Err      error
}

// fallbackOnly lists extensions no in-process decoder handles; these load
// straight on the fallback backend.
var fallbackOnly = map[string]bool{
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".wma":  true,
}

// SleepPresets are the accepted sleep timer lengths in minutes
var SleepPresets = []int{5, 10, 15, 30, 45, 60, 90}

const eventBuffer = 64

// Engine is the playback engine. One engine owns one queue session, at
// most one live backend, and one event channel; slow event consumers lose
// frames rather than stalling playback.
type Engine struct {
	store    *store.Store
	logger   *report.EventLogger
	session  *queue.Session
	native   BackendFactory
	fallback BackendFactory

	mu       sync.Mutex
	backend  Backend
	track    *store.Track
	state    State
	volume   float64
	pollStop chan struct{}
	pollDone chan struct{}

	sleepMu   sync.Mutex
	sleepStop chan struct{}
	sleepLeft time.Duration

	// emitMu orders late backend-callback sends against Close so an
	// in-flight emit can never hit the closed channel.
	emitMu sync.Mutex
	events chan Event
	closed atomic.Bool
}

// Config holds engine configuration. Nil factories select the real
// backends; a nil session gets a fresh empty one.
type Config struct {
	Store    *store.Store
	Logger   *report.EventLogger
	Session  *queue.Session
	Native   BackendFactory
	Fallback BackendFactory
}

// New creates a playback engine
func New(cfg *Config) *Engine {
	e := &Engine{
		store:    cfg.Store,
		logger:   cfg.Logger,
		session:  cfg.Session,
		native:   cfg.Native,
		fallback: cfg.Fallback,
		state:    StateIdle,
		volume:   1.0,
		events:   make(chan Event, eventBuffer),
	}
	if e.session == nil {
		e.session = queue.NewSession()
	}
	if e.native == nil {
		e.native = NewNativeBackend
	}
	if e.fallback == nil {
		e.fallback = NewFallbackBackend
	}
	return e
}

// Events returns the engine event channel. It closes when the engine does.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Session returns the queue session the engine advances through
func (e *Engine) Session() *queue.Session {
	return e.session
}

// State returns the transport state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentTrack returns the loaded track, nil when idle
func (e *Engine) CurrentTrack() *store.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.track
}

// Position returns the playback offset in seconds
func (e *Engine) Position() float64 {
	e.mu.Lock()
	b := e.backend
	e.mu.Unlock()
	if b == nil {
		return 0
	}
	return b.Position()
}

// Duration returns the loaded track length in seconds
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	b := e.backend
	e.mu.Unlock()
	if b == nil {
		return 0
	}
	return b.Duration()
}

// Volume returns the session volume, 0 to 1
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Load releases whatever is playing and starts the given track from the
// beginning. Formats on the fallback list skip the in-process decoders;
// everything else tries native first and retries on the fallback before
// the load fails. The session volume carries over and a history row is
// recorded.
func (e *Engine) Load(track *store.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(track)
}

func (e *Engine) loadLocked(track *store.Track) error {
	e.releaseLocked()
	e.setStateLocked(StateLoading)

	backend, err := e.openBackend(track.Path)
	if err != nil {
		e.setStateLocked(StateIdle)
		e.emit(Event{Type: EventError, TrackID: track.ID, Err: err})
		if e.logger != nil {
			e.logger.LogPlayback(track.ID, track.Path, "load", err)
		}
		return err
	}

	e.backend = backend
	e.track = track
	backend.SetVolume(e.volume)

	if e.store != nil {
		if err := e.store.AddHistory(track.WorkID, track.ID); err != nil {
			util.WarnLog("Failed to record history: %v", err)
		}
	}
	if e.logger != nil {
		e.logger.LogPlayback(track.ID, track.Path, "load", nil)
	}

	e.startPollLocked()
	backend.Play()
	e.setStateLocked(StatePlaying)
	return nil
}

func (e *Engine) openBackend(path string) (Backend, error) {
	ev := BackendEvents{
		TrackEnded: e.handleTrackEnd,
		Position:   func(sec float64) { e.emitPosition(sec) },
		Spectrum:   func(bins []float64) { e.emit(Event{Type: EventSpectrum, Spectrum: bins}) },
	}

	ext := strings.ToLower(filepath.Ext(path))
	if fallbackOnly[ext] {
		b, err := e.fallback(path, ev)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return b, nil
	}

	b, nativeErr := e.native(path, ev)
	if nativeErr == nil {
		return b, nil
	}
	b, fallbackErr := e.fallback(path, ev)
	if fallbackErr == nil {
		util.DebugLog("Native decode failed for %s, using fallback: %v", path, nativeErr)
		return b, nil
	}
	return nil, fmt.Errorf("failed to load %s: native: %v: %w", path, nativeErr, fallbackErr)
}

// Play resumes a paused track, or starts the session's current track when
// nothing is loaded.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePaused:
		e.backend.Play()
		e.setStateLocked(StatePlaying)
		return nil
	case StateIdle:
		track := e.session.Current()
		if track == nil {
			return fmt.Errorf("nothing queued: %w", util.ErrNotFound)
		}
		return e.loadLocked(track)
	default:
		return nil
	}
}

// Pause halts playback, keeping the track loaded
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}
	e.backend.Pause()
	e.setStateLocked(StatePaused)
	return nil
}

// TogglePlayPause flips between playing and paused
func (e *Engine) TogglePlayPause() error {
	if e.State() == StatePlaying {
		return e.Pause()
	}
	return e.Play()
}

// Seek moves playback to the given offset in seconds
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend == nil {
		return fmt.Errorf("nothing loaded: %w", util.ErrNotFound)
	}
	if err := e.backend.Seek(seconds); err != nil {
		return err
	}
	e.emitPosition(e.backend.Position())
	return nil
}

// SetVolume sets the session volume. The level persists across loads.
func (e *Engine) SetVolume(level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = level
	if e.backend != nil {
		return e.backend.SetVolume(level)
	}
	return nil
}

// Next advances the queue. When the queue policy says playback ends, the
// engine stops.
func (e *Engine) Next() error {
	track := e.session.Next()
	if track == nil {
		e.Stop()
		return nil
	}
	return e.Load(track)
}

// Previous restarts the current track when it has played for a few
// seconds, otherwise it steps back through the queue. At the head of the
// queue with nothing elapsed it does nothing.
func (e *Engine) Previous() error {
	elapsed := time.Duration(e.Position() * float64(time.Second))
	track := e.session.Previous(elapsed)
	if track == nil {
		return nil
	}

	e.mu.Lock()
	sameTrack := e.track != nil && e.track.ID == track.ID
	e.mu.Unlock()
	if sameTrack {
		return e.Seek(0)
	}
	return e.Load(track)
}

// Stop releases the backend and returns to idle
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle {
		return
	}
	if e.logger != nil && e.track != nil {
		e.logger.LogPlayback(e.track.ID, e.track.Path, "stop", nil)
	}
	e.releaseLocked()
	e.setStateLocked(StateIdle)
}

// Close stops playback, tears down the sleep timer, and closes the event
// channel.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.CancelSleepTimer()
	e.Stop()
	e.emitMu.Lock()
	close(e.events)
	e.emitMu.Unlock()
}

// handleTrackEnd reacts to a natural track end: it reports the end and
// lets the queue policy decide what plays next.
func (e *Engine) handleTrackEnd() {
	e.mu.Lock()
	track := e.track
	e.mu.Unlock()

	if track != nil {
		e.emit(Event{Type: EventTrackEnded, TrackID: track.ID})
		if e.logger != nil {
			e.logger.LogPlayback(track.ID, track.Path, "end", nil)
		}
	}
	e.Next()
}

// releaseLocked fully tears down the live backend: the poll loop stops
// first so nothing touches the backend after Close.
func (e *Engine) releaseLocked() {
	if e.pollStop != nil {
		close(e.pollStop)
		<-e.pollDone
		e.pollStop = nil
	}
	if e.backend != nil {
		e.backend.Close()
		e.backend = nil
	}
	e.track = nil
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	ev := Event{Type: EventStateChanged, State: s}
	if e.track != nil {
		ev.TrackID = e.track.ID
	}
	e.emit(ev)
}

// startPollLocked runs the once-a-second position loop for the loaded
// backend: it publishes the offset and persists it as the work's resume
// point.
func (e *Engine) startPollLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	e.pollStop = stop
	e.pollDone = done

	backend := e.backend
	track := e.track

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				pos := backend.Position()
				e.emit(Event{
					Type:     EventPosition,
					TrackID:  track.ID,
					Position: pos,
					Duration: backend.Duration(),
				})
				if e.store != nil {
					if err := e.store.SaveProgress(track.WorkID, track.ID, pos); err != nil {
						util.DebugLog("Failed to save progress: %v", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) emitPosition(sec float64) {
	e.emit(Event{Type: EventPosition, Position: sec})
}

// emit delivers an event without ever blocking playback; a full channel
// drops the event.
func (e *Engine) emit(ev Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	if e.closed.Load() {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}

// SetSleepTimer arms the sleep timer with one of the preset lengths.
// Re-arming replaces the running timer. At zero the engine stops playback
// and the timer clears itself.
func (e *Engine) SetSleepTimer(minutes int) error {
	valid := false
	for _, p := range SleepPresets {
		if p == minutes {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("sleep timer must be one of %v minutes: %w", SleepPresets, util.ErrInvalidConfig)
	}

	e.sleepMu.Lock()
	defer e.sleepMu.Unlock()
	e.cancelSleepLocked()

	stop := make(chan struct{})
	e.sleepStop = stop
	e.sleepLeft = time.Duration(minutes) * time.Minute

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.sleepMu.Lock()
				e.sleepLeft -= time.Second
				expired := e.sleepLeft <= 0
				if expired {
					e.sleepLeft = 0
					e.sleepStop = nil
				}
				e.sleepMu.Unlock()

				if expired {
					util.InfoLog("Sleep timer expired, stopping playback")
					e.Stop()
					return
				}
			}
		}
	}()

	return nil
}

// SleepRemaining returns the time left on the sleep timer, zero when unset
func (e *Engine) SleepRemaining() time.Duration {
	e.sleepMu.Lock()
	defer e.sleepMu.Unlock()
	if e.sleepStop == nil {
		return 0
	}
	return e.sleepLeft
}

// CancelSleepTimer disarms the sleep timer if one is running
func (e *Engine) CancelSleepTimer() {
	e.sleepMu.Lock()
	defer e.sleepMu.Unlock()
	e.cancelSleepLocked()
}

func (e *Engine) cancelSleepLocked() {
	if e.sleepStop != nil {
		close(e.sleepStop)
		e.sleepStop = nil
		e.sleepLeft = 0
	}
}
