package static

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewSourceFromJSONObject(t *testing.T) {
	src, err := NewSourceFromJSON(json.RawMessage(`{"apiKey":"dev-key"}`))
	if err != nil {
		t.Fatalf("NewSourceFromJSON: %v", err)
	}
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "dev-key" {
		t.Errorf("Token = %q, want dev-key", tok)
	}
}

func TestNewSourceFromJSONString(t *testing.T) {
	src, err := NewSourceFromJSON(json.RawMessage(`"bare-key"`))
	if err != nil {
		t.Fatalf("NewSourceFromJSON: %v", err)
	}
	tok, _ := src.Token(context.Background())
	if tok != "bare-key" {
		t.Errorf("Token = %q, want bare-key", tok)
	}
}

func TestNewSourceFromJSONInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"empty key", `{"apiKey":"  "}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSourceFromJSON(json.RawMessage(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
