// Package testutil provides in-memory doubles shared by package tests.
package testutil

import (
	"sync"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
)

// LogMessage is one record captured by MockLogger. Fields include those
// attached through With.
type LogMessage struct {
	Level   string
	Message string
	Fields  []logging.Field
}

// Field returns the value of the first field named key.
func (m LogMessage) Field(key string) (interface{}, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

type logBuffer struct {
	mu      sync.Mutex
	records []LogMessage
}

// MockLogger records every entry in memory. Loggers derived through With or
// Named append to the same buffer.
type MockLogger struct {
	buf    *logBuffer
	fields []logging.Field
}

// NewMockLogger returns an empty recorder.
func NewMockLogger() *MockLogger {
	return &MockLogger{buf: &logBuffer{}}
}

func (m *MockLogger) record(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.buf.mu.Lock()
	m.buf.records = append(m.buf.records, LogMessage{Level: level, Message: msg, Fields: all})
	m.buf.mu.Unlock()
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.record("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.record("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.record("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.record("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.record("fatal", msg, fields) }

func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := &MockLogger{buf: m.buf, fields: make([]logging.Field, 0, len(m.fields)+len(fields))}
	child.fields = append(append(child.fields, m.fields...), fields...)
	return child
}

func (m *MockLogger) Named(string) logging.Logger {
	return &MockLogger{buf: m.buf, fields: m.fields}
}

// GetMessages returns a snapshot of the records.
func (m *MockLogger) GetMessages() []LogMessage {
	m.buf.mu.Lock()
	defer m.buf.mu.Unlock()
	return append([]LogMessage(nil), m.buf.records...)
}

// Clear drops every record.
func (m *MockLogger) Clear() {
	m.buf.mu.Lock()
	m.buf.records = nil
	m.buf.mu.Unlock()
}

// HasMessage reports whether msg was logged at level.
func (m *MockLogger) HasMessage(level, msg string) bool {
	return m.Count(level, msg) > 0
}

// Count returns how often msg was logged at level.
func (m *MockLogger) Count(level, msg string) int {
	n := 0
	for _, r := range m.GetMessages() {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}
