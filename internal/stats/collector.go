// Package stats counts what a worker has done since it started.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bamsammich/diskpack/internal/units"
)

// Counter names one of the values a Collector tracks.
type Counter int

const (
	TasksClaimed Counter = iota
	TasksFinished
	TasksAborted
	FilesCopied
	FilesFailed
	BytesCopied
	FilesVerified
	FilesVerifyFailed

	numCounters
)

// Collector is a set of counters safe for concurrent use.
type Collector struct {
	start  time.Time
	counts [numCounters]atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{start: time.Now()}
}

// Add adds n to counter c.
func (c *Collector) Add(ctr Counter, n int64) {
	c.counts[ctr].Add(n)
}

// Load returns the current value of counter c.
func (c *Collector) Load(ctr Counter) int64 {
	return c.counts[ctr].Load()
}

func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Snapshot is a copy of every counter taken at one moment.
type Snapshot struct {
	TasksClaimed      int64
	TasksFinished     int64
	TasksAborted      int64
	FilesCopied       int64
	FilesFailed       int64
	BytesCopied       int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TasksClaimed:      c.Load(TasksClaimed),
		TasksFinished:     c.Load(TasksFinished),
		TasksAborted:      c.Load(TasksAborted),
		FilesCopied:       c.Load(FilesCopied),
		FilesFailed:       c.Load(FilesFailed),
		BytesCopied:       c.Load(BytesCopied),
		FilesVerified:     c.Load(FilesVerified),
		FilesVerifyFailed: c.Load(FilesVerifyFailed),
		Elapsed:           c.Elapsed(),
	}
}

// Throughput is the mean copy rate in bytes per second.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / s.Elapsed.Seconds()
}

func (s Snapshot) String() string {
	return fmt.Sprintf("tasks=%d finished=%d aborted=%d copied=%d failed=%d bytes=%s",
		s.TasksClaimed, s.TasksFinished, s.TasksAborted,
		s.FilesCopied, s.FilesFailed, units.FormatBytes(s.BytesCopied))
}
