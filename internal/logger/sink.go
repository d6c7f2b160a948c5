package logger

import (
	"fmt"
	"sync"
	"time"
)

// Sink is the logging interface the detection core depends on
// *Logger, Recent, Tee and Nop all implement it
type Sink interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Nop discards everything
type Nop struct{}

func (Nop) Debug(string, ...interface{}) {}
func (Nop) Info(string, ...interface{})  {}
func (Nop) Warn(string, ...interface{})  {}
func (Nop) Error(string, ...interface{}) {}

// Tee fans every message out to several sinks
type Tee []Sink

func (t Tee) Debug(format string, v ...interface{}) {
	for _, s := range t {
		s.Debug(format, v...)
	}
}

func (t Tee) Info(format string, v ...interface{}) {
	for _, s := range t {
		s.Info(format, v...)
	}
}

func (t Tee) Warn(format string, v ...interface{}) {
	for _, s := range t {
		s.Warn(format, v...)
	}
}

func (t Tee) Error(format string, v ...interface{}) {
	for _, s := range t {
		s.Error(format, v...)
	}
}

// Func adapts a plain message callback to Sink. Debug messages are dropped
type Func func(message string)

func (f Func) Debug(string, ...interface{}) {}

func (f Func) Info(format string, v ...interface{}) {
	f(fmt.Sprintf(format, v...))
}

func (f Func) Warn(format string, v ...interface{}) {
	f("WARN: " + fmt.Sprintf(format, v...))
}

func (f Func) Error(format string, v ...interface{}) {
	f("ERROR: " + fmt.Sprintf(format, v...))
}

// Entry is one message kept by Recent
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Recent keeps the last N messages at or above a minimum level in memory,
// for display in the settings page
type Recent struct {
	mu      sync.Mutex
	min     Level
	entries []Entry
	next    int
	full    bool
}

// NewRecent creates a history holding up to size entries
func NewRecent(size int, min Level) *Recent {
	if size <= 0 {
		size = 1
	}
	return &Recent{
		min:     min,
		entries: make([]Entry, size),
	}
}

func (r *Recent) add(level Level, format string, v ...interface{}) {
	if level < r.min {
		return
	}
	e := Entry{
		Time:    time.Now(),
		Level:   level.String(),
		Message: fmt.Sprintf(format, v...),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

func (r *Recent) Debug(format string, v ...interface{}) { r.add(DEBUG, format, v...) }
func (r *Recent) Info(format string, v ...interface{})  { r.add(INFO, format, v...) }
func (r *Recent) Warn(format string, v ...interface{})  { r.add(WARN, format, v...) }
func (r *Recent) Error(format string, v ...interface{}) { r.add(ERROR, format, v...) }

// Entries returns the kept messages, oldest first
func (r *Recent) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
