package logdestination

import (
	"sync"
	"testing"

	"github.com/routecraftjs/routecraft"
)

type recordingLogger struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingLogger) Debug(msg string, args ...any) { r.record("debug", msg) }
func (r *recordingLogger) Info(msg string, args ...any)  { r.record("info", msg) }
func (r *recordingLogger) Warn(msg string, args ...any)  { r.record("warn", msg) }
func (r *recordingLogger) Error(msg string, args ...any) { r.record("error", msg) }
func (r *recordingLogger) With(args ...any) routecraft.Logger { return r }

func (r *recordingLogger) record(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, level+":"+msg)
}

func TestLogDestinationDefaultsToInfoLevel(t *testing.T) {
	logger := &recordingLogger{}
	dest := New(logger, Options{})

	ex := &routecraft.Exchange{Body: "payload", Headers: routecraft.Headers{}}
	if err := dest.Send(ex); err != nil {
		t.Fatalf("Send: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.calls) != 1 || logger.calls[0] != "info:exchange" {
		t.Fatalf("calls = %v, want [info:exchange]", logger.calls)
	}
}

func TestLogDestinationHonorsLevelAndMessage(t *testing.T) {
	logger := &recordingLogger{}
	dest := New(logger, Options{Level: LevelWarn, Message: "custom"})

	if err := dest.Send(&routecraft.Exchange{Body: "x", Headers: routecraft.Headers{}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.calls) != 1 || logger.calls[0] != "warn:custom" {
		t.Fatalf("calls = %v, want [warn:custom]", logger.calls)
	}
}
