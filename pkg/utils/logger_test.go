package utils

import (
	"math"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		debug bool
		level zapcore.Level
	}{
		{debug: true, level: zapcore.DebugLevel},
		{debug: false, level: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.debug)
		if err != nil {
			t.Fatalf("NewLogger(%v) error: %v", tt.debug, err)
		}
		if !logger.Core().Enabled(tt.level) {
			t.Errorf("NewLogger(%v): level %s disabled", tt.debug, tt.level)
		}
		if !tt.debug && logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("production logger should not log debug")
		}
		_ = logger.Sync()
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2 = %v, want [0.6 0.8]", v)
	}
	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
