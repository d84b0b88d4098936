package flow

import (
	"errors"
	"testing"

	"github.com/lumeo-ai/lumeo/internal/shared"
)

func TestParseServerMessage_Transcript(t *testing.T) {
	data := []byte(`{"message":"AddTranscript","metadata":{"transcript":"hello there"}}`)
	msg, err := parseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if msg.Message != "AddTranscript" {
		t.Errorf("expected AddTranscript, got %s", msg.Message)
	}
	if msg.Metadata == nil || msg.Metadata.Transcript != "hello there" {
		t.Errorf("transcript not parsed: %+v", msg.Metadata)
	}
}

func TestParseServerMessage_ToolInvoke(t *testing.T) {
	data := []byte(`{"message":"ToolInvoke","id":"inv-1","function":{"name":"query_stock_price","arguments":{"query":"AAPL"}}}`)
	msg, err := parseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if msg.ID != "inv-1" {
		t.Errorf("expected id inv-1, got %s", msg.ID)
	}
	if msg.Function == nil || msg.Function.Name != "query_stock_price" {
		t.Fatalf("function not parsed: %+v", msg.Function)
	}
	if string(msg.Function.Arguments) != `{"query":"AAPL"}` {
		t.Errorf("unexpected arguments: %s", msg.Function.Arguments)
	}
}

func TestParseServerMessage_Invalid(t *testing.T) {
	if _, err := parseServerMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := parseServerMessage([]byte(`{"content":"no type"}`)); err == nil {
		t.Error("expected error for missing message type")
	}
}

func TestServerError_QuotaClassification(t *testing.T) {
	tests := []struct {
		name      string
		msg       *serverMessage
		wantQuota bool
	}{
		{
			name:      "typed quota error",
			msg:       &serverMessage{Message: "Error", Type: "quota_exceeded", Reason: "too many sessions"},
			wantQuota: true,
		},
		{
			name:      "quota wording in reason",
			msg:       &serverMessage{Message: "Error", Type: "rejected", Reason: "Concurrent Quota Exceeded"},
			wantQuota: true,
		},
		{
			name:      "unrelated error",
			msg:       &serverMessage{Message: "Error", Type: "protocol_error", Reason: "bad frame"},
			wantQuota: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := serverError(tt.msg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, shared.ErrQuotaExceeded); got != tt.wantQuota {
				t.Errorf("quota classification = %v, want %v (err: %v)", got, tt.wantQuota, err)
			}
		})
	}
}

func TestNormalizeAudioSettings(t *testing.T) {
	got := NormalizeAudioSettings(AudioSettings{})
	if got.Encoding != "pcm_s16le" {
		t.Errorf("expected pcm_s16le, got %s", got.Encoding)
	}
	if got.SampleRate != 16000 {
		t.Errorf("expected 16000, got %d", got.SampleRate)
	}
	if got.ChunkSize != 1024 {
		t.Errorf("expected 1024, got %d", got.ChunkSize)
	}

	explicit := NormalizeAudioSettings(AudioSettings{Encoding: "pcm_f32le", SampleRate: 44100, ChunkSize: 256})
	if explicit.Encoding != "pcm_f32le" || explicit.SampleRate != 44100 || explicit.ChunkSize != 256 {
		t.Errorf("explicit settings were overridden: %+v", explicit)
	}
}
