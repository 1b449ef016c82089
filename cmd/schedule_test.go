package cmd

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "descriptor", spec: "@every 1h"},
		{name: "standard", spec: "0 */4 * * *"},
		{name: "default", spec: "  "},
		{name: "invalid", spec: "every now and then", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newScheduler(tt.spec, zap.NewNop(), func() {})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for %q", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(c.Entries()) != 1 {
				t.Fatalf("expected one entry, got %d", len(c.Entries()))
			}
		})
	}
}

func TestCronLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := cronLogger{logger: zap.New(core).Sugar()}

	cl.Info("wake", "now", "later")
	cl.Error(errors.New("boom"), "panic", "entry", 1)

	if logs.FilterMessage("wake").FilterLevelExact(zapcore.DebugLevel).Len() != 1 {
		t.Fatalf("expected the info message at debug level")
	}

	failed := logs.FilterMessage("panic").FilterLevelExact(zapcore.ErrorLevel).All()
	if len(failed) != 1 {
		t.Fatalf("expected one error entry, got %d", len(failed))
	}
	if failed[0].ContextMap()["error"] != "boom" {
		t.Fatalf("expected the error field, got %v", failed[0].ContextMap())
	}
}
