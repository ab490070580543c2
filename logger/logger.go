// Package logger keeps the teacher's tag-pair Logger interface but backs
// it with github.com/rs/zerolog (the structured logger cuemby-warren uses)
// instead of plain fmt.Fprintln, so every backend and HTTP handler emits
// structured, leveled entries.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger takes in a message and tag pairs, alternating key then value.
type Logger interface {
	Debug(msg string, tags ...interface{})
	Info(msg string, tags ...interface{})
	Warn(msg string, tags ...interface{})
	Error(msg string, tags ...interface{})
}

type logger struct{ z zerolog.Logger }

// New creates a JSON logger writing to stdout.
func New() Logger {
	return &logger{z: zerolog.New(os.Stdout).With().Timestamp().Logger()}
}

// NewWithWriter creates a logger writing to an arbitrary writer, for tests
// that need to assert on log output.
func NewWithWriter(w zerolog.LevelWriter) Logger {
	return &logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

func withTags(event *zerolog.Event, tags ...interface{}) *zerolog.Event {
	for i := 0; i+1 < len(tags); i += 2 {
		key, ok := tags[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, tags[i+1])
	}
	return event
}

func (l *logger) Debug(msg string, tags ...interface{}) { withTags(l.z.Debug(), tags...).Msg(msg) }
func (l *logger) Info(msg string, tags ...interface{})  { withTags(l.z.Info(), tags...).Msg(msg) }
func (l *logger) Warn(msg string, tags ...interface{})  { withTags(l.z.Warn(), tags...).Msg(msg) }
func (l *logger) Error(msg string, tags ...interface{}) { withTags(l.z.Error(), tags...).Msg(msg) }
