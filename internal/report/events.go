package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventScan     EventType = "scan"
	EventCleanup  EventType = "cleanup"
	EventEnrich   EventType = "enrich"
	EventPlayback EventType = "playback"
	EventSkip     EventType = "skip"
	EventError    EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in the library pipeline
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	WorkID    int64             `json:"work_id,omitempty"`
	TrackID   int64             `json:"track_id,omitempty"`
	Code      string            `json:"code,omitempty"`
	Path      string            `json:"path,omitempty"`
	Action    string            `json:"action,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// NullLogger returns a logger that discards all events
func NullLogger() *EventLogger {
	return &EventLogger{}
}

// Path returns the path of the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogScan logs a scanned work
func (l *EventLogger) LogScan(workID int64, code, dirPath string, trackCount int) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventScan,
		WorkID: workID,
		Code:   code,
		Path:   dirPath,
		Extra: map[string]string{
			"track_count": fmt.Sprintf("%d", trackCount),
		},
	})
}

// LogCleanup logs removal of an orphaned work
func (l *EventLogger) LogCleanup(workID int64, dirPath string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventCleanup,
		WorkID: workID,
		Path:   dirPath,
	})
}

// LogEnrich logs a metadata enrichment attempt
func (l *EventLogger) LogEnrich(workID int64, code string, err error) error {
	level := LevelInfo
	event := EventEnrich
	errMsg := ""
	if err != nil {
		level = LevelWarning
		event = EventSkip
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:  level,
		Event:  event,
		WorkID: workID,
		Code:   code,
		Error:  errMsg,
	})
}

// LogPlayback logs a transport action (load, fallback, end)
func (l *EventLogger) LogPlayback(trackID int64, path, action string, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventPlayback,
		TrackID: trackID,
		Path:    path,
		Action:  action,
		Error:   errMsg,
	})
}

// LogError logs a generic error event
func (l *EventLogger) LogError(path string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: EventError,
		Path:  path,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
