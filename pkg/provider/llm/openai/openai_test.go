package openai

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/clipforge/clipforge/pkg/provider/llm"
)

// TestBuildParams_SystemAndPrompt checks that both messages land in order.
func TestBuildParams_SystemAndPrompt(t *testing.T) {
	c := &Client{model: "gpt-4o-mini"}
	params := c.buildParams(llm.Request{System: "You judge clips.", Prompt: "Score these."})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Fatal("expected first message to be the system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Fatal("expected second message to be the user message")
	}
}

// TestBuildParams_NoSystem checks that an empty system prompt is omitted.
func TestBuildParams_NoSystem(t *testing.T) {
	c := &Client{model: "gpt-4o-mini"}
	params := c.buildParams(llm.Request{Prompt: "Score these."})
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].OfUser == nil {
		t.Fatal("expected the single message to be the user message")
	}
}

// TestBuildParams_Temperature checks the optional temperature is forwarded.
func TestBuildParams_Temperature(t *testing.T) {
	c := &Client{model: "gpt-4o-mini"}
	params := c.buildParams(llm.Request{Prompt: "x", Temperature: 0.2})
	if !params.Temperature.Valid() {
		t.Fatal("expected temperature to be set")
	}
	if got := params.Temperature.Value; got != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got)
	}
}

// TestParseRetryAfter_Seconds checks integer-second header parsing.
func TestParseRetryAfter_Seconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3600")
	if got := parseRetryAfter(h); got != 3600*time.Second {
		t.Errorf("expected 3600s, got %s", got)
	}
}

// TestParseRetryAfter_Missing checks that an absent header yields zero.
func TestParseRetryAfter_Missing(t *testing.T) {
	if got := parseRetryAfter(http.Header{}); got != 0 {
		t.Errorf("expected 0, got %s", got)
	}
}

// TestParseRetryAfter_HTTPDate checks that date-format values count as no hint.
func TestParseRetryAfter_HTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("expected 0 for HTTP-date value, got %s", got)
	}
}

// TestConvertErr_PassThrough checks non-SDK errors survive unchanged.
func TestConvertErr_PassThrough(t *testing.T) {
	orig := errors.New("dial tcp: connection refused")
	if got := convertErr(orig); !errors.Is(got, orig) {
		t.Errorf("expected original error, got %v", got)
	}
}

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_Options checks that optional settings are accepted without error.
func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
		WithTimeout(30*time.Second),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
