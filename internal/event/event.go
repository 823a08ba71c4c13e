// Package event carries worker progress to whoever is listening, usually the
// CLI logger.
package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	TaskClaimed Type = iota + 1
	TaskFinished
	TaskAborted
	PollIdle
	FileStarted
	FileCompleted
	FileFailed
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	TaskClaimed:   "task_claimed",
	TaskFinished:  "task_finished",
	TaskAborted:   "task_aborted",
	PollIdle:      "poll_idle",
	FileStarted:   "file_started",
	FileCompleted: "file_completed",
	FileFailed:    "file_failed",
	VerifyOK:      "verify_ok",
	VerifyFailed:  "verify_failed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Event is a single progress event from the worker. IDs are zero when they
// do not apply.
type Event struct {
	Timestamp time.Time
	Error     error
	Type      Type
	Path      string // source path of the file or directory
	TaskID    int64
	DirID     int64
	DestID    int64
	FileID    int64
	Size      int64
}

// Attrs renders e as log attributes, leaving out empty fields.
func (e Event) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 9)
	attrs = append(attrs, slog.String("type", e.Type.String()))
	if !e.Timestamp.IsZero() {
		attrs = append(attrs, slog.Time("at", e.Timestamp))
	}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	ids := [...]struct {
		key string
		val int64
	}{
		{"task_id", e.TaskID},
		{"dir_id", e.DirID},
		{"dest_id", e.DestID},
		{"file_id", e.FileID},
		{"size", e.Size},
	}
	for _, id := range ids {
		if id.val != 0 {
			attrs = append(attrs, slog.Int64(id.key, id.val))
		}
	}
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

// LogValue implements slog.LogValuer.
func (e Event) LogValue() slog.Value {
	return slog.GroupValue(e.Attrs()...)
}
