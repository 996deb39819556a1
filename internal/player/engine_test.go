package player

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/franz/earshelf/internal/store"
	"github.com/franz/earshelf/internal/util"
)

// stubBackend records transport calls instead of touching an audio device
type stubBackend struct {
	mu      sync.Mutex
	ev      BackendEvents
	playing bool
	pos     float64
	volumes []float64
	seeks   []float64
	closed  bool
}

func (b *stubBackend) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = true
	return nil
}

func (b *stubBackend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = false
	return nil
}

func (b *stubBackend) Seek(seconds float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeks = append(b.seeks, seconds)
	b.pos = seconds
	return nil
}

func (b *stubBackend) SetVolume(level float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumes = append(b.volumes, level)
	return nil
}

func (b *stubBackend) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

func (b *stubBackend) Duration() float64 { return 60 }

func (b *stubBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *stubBackend) setPos(sec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = sec
}

// stubFactory opens stub backends and remembers every path it was asked for
type stubFactory struct {
	mu    sync.Mutex
	opens []string
	fail  error
	last  *stubBackend
}

func (f *stubFactory) open(path string, ev BackendEvents) (Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, path)
	if f.fail != nil {
		return nil, f.fail
	}
	b := &stubBackend{ev: ev}
	f.last = b
	return b, nil
}

func (f *stubFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *stubFactory) lastBackend() *stubBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestEngine(t *testing.T) (*Engine, *stubFactory, *stubFactory) {
	t.Helper()

	native := &stubFactory{}
	fallback := &stubFactory{}
	e := New(&Config{Native: native.open, Fallback: fallback.open})
	t.Cleanup(e.Close)
	return e, native, fallback
}

func testTrack(id int64, path string) *store.Track {
	return &store.Track{ID: id, WorkID: 1, Title: fmt.Sprintf("track %d", id), Path: path}
}

func TestLoadUsesNativeForKnownFormats(t *testing.T) {
	e, native, fallback := newTestEngine(t)

	if err := e.Load(testTrack(1, "/lib/RJ123456/01.mp3")); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if native.openCount() != 1 || fallback.openCount() != 0 {
		t.Errorf("expected native only, got native=%d fallback=%d", native.openCount(), fallback.openCount())
	}
	if e.State() != StatePlaying {
		t.Errorf("expected playing, got %s", e.State())
	}
}

func TestLoadSkipsNativeForFallbackFormats(t *testing.T) {
	e, native, fallback := newTestEngine(t)

	for _, path := range []string{"/lib/a.m4a", "/lib/b.aac", "/lib/c.opus", "/lib/d.wma"} {
		if err := e.Load(testTrack(1, path)); err != nil {
			t.Fatalf("load %s failed: %v", path, err)
		}
	}
	if native.openCount() != 0 {
		t.Errorf("native must never be tried for fallback-only formats, got %d opens", native.openCount())
	}
	if fallback.openCount() != 4 {
		t.Errorf("expected 4 fallback opens, got %d", fallback.openCount())
	}
}

func TestLoadRetriesOnFallbackWhenNativeFails(t *testing.T) {
	e, native, fallback := newTestEngine(t)
	native.fail = errors.New("corrupt stream")

	if err := e.Load(testTrack(1, "/lib/RJ123456/01.mp3")); err != nil {
		t.Fatalf("expected fallback to rescue the load: %v", err)
	}
	if native.openCount() != 1 || fallback.openCount() != 1 {
		t.Errorf("expected one try each, got native=%d fallback=%d", native.openCount(), fallback.openCount())
	}
}

func TestLoadFailsWhenBothBackendsFail(t *testing.T) {
	e, native, fallback := newTestEngine(t)
	native.fail = errors.New("corrupt stream")
	fallback.fail = util.ErrNoBackend

	err := e.Load(testTrack(1, "/lib/RJ123456/01.mp3"))
	if !errors.Is(err, util.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if e.State() != StateIdle {
		t.Errorf("expected idle after failed load, got %s", e.State())
	}
}

func TestVolumePersistsAcrossLoads(t *testing.T) {
	e, native, _ := newTestEngine(t)

	if err := e.SetVolume(0.4); err != nil {
		t.Fatalf("set volume failed: %v", err)
	}
	e.Load(testTrack(1, "/lib/RJ123456/01.mp3"))
	e.Load(testTrack(2, "/lib/RJ123456/02.mp3"))

	b := native.lastBackend()
	if len(b.volumes) == 0 || b.volumes[0] != 0.4 {
		t.Errorf("expected volume 0.4 applied to the new backend, got %v", b.volumes)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.SetVolume(1.7)
	if e.Volume() != 1 {
		t.Errorf("expected clamp to 1, got %f", e.Volume())
	}
	e.SetVolume(-0.2)
	if e.Volume() != 0 {
		t.Errorf("expected clamp to 0, got %f", e.Volume())
	}
}

func TestPauseAndResume(t *testing.T) {
	e, native, _ := newTestEngine(t)
	e.Load(testTrack(1, "/lib/RJ123456/01.mp3"))

	if err := e.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if e.State() != StatePaused || native.lastBackend().playing {
		t.Error("expected backend paused")
	}

	if err := e.Play(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if e.State() != StatePlaying || !native.lastBackend().playing {
		t.Error("expected backend playing")
	}
}

func TestPlayFromIdleLoadsQueuedTrack(t *testing.T) {
	e, native, _ := newTestEngine(t)
	e.Session().SetQueue([]store.Track{*testTrack(1, "/lib/RJ123456/01.mp3")}, 0)

	if err := e.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if native.openCount() != 1 || e.State() != StatePlaying {
		t.Error("expected the queued track to load and play")
	}

	e.Stop()
	if err := e.Play(); err != nil {
		t.Fatalf("play after stop failed: %v", err)
	}
}

func TestTrackEndAutoAdvances(t *testing.T) {
	e, native, _ := newTestEngine(t)
	e.Session().SetQueue([]store.Track{
		*testTrack(1, "/lib/RJ123456/01.mp3"),
		*testTrack(2, "/lib/RJ123456/02.mp3"),
	}, 0)

	e.Load(e.Session().Current())
	first := native.lastBackend()

	first.ev.TrackEnded()
	if e.Session().Index() != 1 {
		t.Errorf("expected advance to index 1, got %d", e.Session().Index())
	}
	if !first.closed {
		t.Error("expected the finished backend to be released")
	}
	if cur := e.CurrentTrack(); cur == nil || cur.ID != 2 {
		t.Errorf("expected track 2 loaded, got %+v", cur)
	}

	// Last track ends: no repeat, playback stops
	native.lastBackend().ev.TrackEnded()
	if e.State() != StateIdle {
		t.Errorf("expected idle after the queue ran out, got %s", e.State())
	}
}

func TestPreviousRestartsLongPlayingTrack(t *testing.T) {
	e, native, _ := newTestEngine(t)
	e.Session().SetQueue([]store.Track{
		*testTrack(1, "/lib/RJ123456/01.mp3"),
		*testTrack(2, "/lib/RJ123456/02.mp3"),
	}, 1)

	e.Load(e.Session().Current())
	b := native.lastBackend()
	b.setPos(12)

	if err := e.Previous(); err != nil {
		t.Fatalf("previous failed: %v", err)
	}
	if native.openCount() != 1 {
		t.Error("restart must seek, not reload")
	}
	if len(b.seeks) != 1 || b.seeks[0] != 0 {
		t.Errorf("expected seek to 0, got %v", b.seeks)
	}

	// Fresh track: step back to the prior one
	if err := e.Previous(); err != nil {
		t.Fatalf("previous failed: %v", err)
	}
	if cur := e.CurrentTrack(); cur == nil || cur.ID != 1 {
		t.Errorf("expected track 1 loaded, got %+v", cur)
	}
}

func TestSleepTimerPresets(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if err := e.SetSleepTimer(7); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a non-preset length, got %v", err)
	}
	if err := e.SetSleepTimer(15); err != nil {
		t.Fatalf("failed to arm sleep timer: %v", err)
	}
	if left := e.SleepRemaining(); left != 15*time.Minute {
		t.Errorf("expected 15m remaining, got %s", left)
	}

	e.CancelSleepTimer()
	if e.SleepRemaining() != 0 {
		t.Error("expected timer cleared after cancel")
	}
}

func TestHistoryRecordedOnLoad(t *testing.T) {
	s, err := store.Open(t.TempDir() + "/library.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	w := &store.Work{Title: "work", DirPath: "/lib/work"}
	if err := s.InsertWork(w); err != nil {
		t.Fatalf("failed to insert work: %v", err)
	}
	track := &store.Track{WorkID: w.ID, Title: "t", Path: "/lib/work/01.mp3", Visible: true}
	if err := s.UpsertTrack(track); err != nil {
		t.Fatalf("failed to insert track: %v", err)
	}

	native := &stubFactory{}
	e := New(&Config{Store: s, Native: native.open, Fallback: native.open})
	defer e.Close()

	if err := e.Load(track); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	entries, err := s.ListHistory(10)
	if err != nil {
		t.Fatalf("failed to list history: %v", err)
	}
	if len(entries) != 1 || entries[0].TrackID != track.ID {
		t.Errorf("expected one history row for the loaded track, got %+v", entries)
	}
}

func TestBackendEventsAfterCloseAreDropped(t *testing.T) {
	native := &stubFactory{}
	e := New(&Config{Native: native.open, Fallback: (&stubFactory{}).open})

	if err := e.Load(testTrack(1, "/lib/RJ123456/01.mp3")); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	backend := native.lastBackend()

	// Backend callbacks still in flight while Close runs must be dropped,
	// never sent on the closed channel.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			backend.ev.position(float64(i))
		}
	}()
	e.Close()
	wg.Wait()

	// Late natural-end and spectrum callbacks after Close must be no-ops.
	backend.ev.trackEnded()
	backend.ev.spectrum([]float64{0.5})

	// Buffered events from before Close are fine; the channel must still
	// reach its close so consumers terminate.
	for range e.Events() {
	}
}
