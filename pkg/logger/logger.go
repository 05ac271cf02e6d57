package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	root zerolog.Logger = newRoot(zerolog.InfoLevel)
)

func newRoot(level zerolog.Level) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Init sets the global log level. Accepted values: debug, info, warn, error.
// Unknown values fall back to info.
func Init(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	mu.Lock()
	root = newRoot(parsed)
	mu.Unlock()
}

// SetOutput redirects log output, used by tests.
func SetOutput(logger zerolog.Logger) {
	mu.Lock()
	root = logger
	mu.Unlock()
}

func component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", name).Logger()
}

func withFields(evt *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for key, value := range fields {
		evt = evt.Interface(key, value)
	}
	return evt
}

func DebugC(name, msg string) {
	l := component(name)
	l.Debug().Msg(msg)
}

func DebugCF(name, msg string, fields map[string]interface{}) {
	l := component(name)
	withFields(l.Debug(), fields).Msg(msg)
}

func InfoC(name, msg string) {
	l := component(name)
	l.Info().Msg(msg)
}

func InfoCF(name, msg string, fields map[string]interface{}) {
	l := component(name)
	withFields(l.Info(), fields).Msg(msg)
}

func WarnC(name, msg string) {
	l := component(name)
	l.Warn().Msg(msg)
}

func WarnCF(name, msg string, fields map[string]interface{}) {
	l := component(name)
	withFields(l.Warn(), fields).Msg(msg)
}

func ErrorC(name, msg string) {
	l := component(name)
	l.Error().Msg(msg)
}

func ErrorCF(name, msg string, fields map[string]interface{}) {
	l := component(name)
	withFields(l.Error(), fields).Msg(msg)
}
