package shared

import (
	"strings"
	"testing"
	"time"
)

func TestNewID(t *testing.T) {
	id := NewID("sess_")
	if !strings.HasPrefix(id, "sess_") {
		t.Errorf("expected prefix 'sess_', got %s", id)
	}
	if len(id) != len("sess_")+32 {
		t.Errorf("expected 32 hex chars after prefix, got %d", len(id)-len("sess_"))
	}
	if id == NewID("sess_") {
		t.Error("two IDs should not collide")
	}
}

func TestNormalizeBackoff(t *testing.T) {
	tests := []struct {
		name  string
		input BackoffConfig
		want  BackoffConfig
	}{
		{
			name:  "zero value gets defaults",
			input: BackoffConfig{},
			want: BackoffConfig{
				Initial:     2 * time.Second,
				Multiplier:  2,
				MaxAttempts: 3,
			},
		},
		{
			name: "explicit values kept",
			input: BackoffConfig{
				Initial:     500 * time.Millisecond,
				Multiplier:  3,
				MaxAttempts: 5,
			},
			want: BackoffConfig{
				Initial:     500 * time.Millisecond,
				Multiplier:  3,
				MaxAttempts: 5,
			},
		},
		{
			name: "sub-unit multiplier reset",
			input: BackoffConfig{
				Initial:     time.Second,
				Multiplier:  0.5,
				MaxAttempts: 2,
			},
			want: BackoffConfig{
				Initial:     time.Second,
				Multiplier:  2,
				MaxAttempts: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBackoff(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeBackoff() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
