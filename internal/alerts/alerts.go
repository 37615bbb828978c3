// Package alerts provides the operational alert sink used by background jobs.
// Alerts are signals for operators (capacity problems, missing data), not errors:
// emitting one never interrupts the job that raised it.
package alerts

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level indicates alert severity
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is a single operational alert
type Alert struct {
	Level     Level     `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink accepts operational alerts from jobs and services
type Sink interface {
	Alert(level Level, source, message string)
}

// LogSink logs alerts and keeps a bounded in-memory history for the API
type LogSink struct {
	log     zerolog.Logger
	mu      sync.Mutex
	history []Alert
	maxKeep int
}

// NewLogSink creates an alert sink backed by the structured logger
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{
		log:     log.With().Str("component", "alerts").Logger(),
		maxKeep: 100,
	}
}

// Alert records and logs an operational alert
func (s *LogSink) Alert(level Level, source, message string) {
	alert := Alert{
		Level:     level,
		Source:    source,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.history = append(s.history, alert)
	if len(s.history) > s.maxKeep {
		s.history = s.history[len(s.history)-s.maxKeep:]
	}
	s.mu.Unlock()

	event := s.log.Warn()
	switch level {
	case LevelInfo:
		event = s.log.Info()
	case LevelCritical:
		event = s.log.Error()
	}

	event.
		Str("source", source).
		Str("level", string(level)).
		Msg(message)
}

// Recent returns the most recent alerts, newest last
func (s *LogSink) Recent() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.history))
	copy(out, s.history)
	return out
}
