package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func TestNewClient_WithAPIKey(t *testing.T) {
	client, err := NewClient(ClientConfig{
		APIKey: "test-key-123",
		Model:  anthropic.ModelClaudeSonnet4_20250514,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
	if client.Tracker() == nil {
		t.Error("Tracker should not be nil")
	}
	if client.maxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", client.maxTokens, DefaultMaxTokens)
	}
}

func TestNewClient_WithEnvVar(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)

	os.Setenv("ANTHROPIC_API_KEY", "env-test-key")

	if _, err := NewClient(ClientConfig{}); err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)

	os.Unsetenv("ANTHROPIC_API_KEY")

	_, err := NewClient(ClientConfig{})
	if err == nil {
		t.Fatal("NewClient should fail without API key")
	}
	expected := "ANTHROPIC_API_KEY environment variable is not set"
	if err.Error() != expected {
		t.Errorf("Error = %q, want %q", err.Error(), expected)
	}
}

func TestNewClient_DefaultModel(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model = %q, want default %q", client.Model(), anthropic.ModelClaudeSonnet4_20250514)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	tests := []struct {
		in   anthropic.Model
		want anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_20250514, "us.anthropic.claude-sonnet-4-20250514-v1:0"},
		{anthropic.ModelClaudeHaiku4_5_20251001, "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
		{"us.anthropic.custom-v1:0", "us.anthropic.custom-v1:0"},
		{"my-custom-model", "my-custom-model"},
	}
	for _, tt := range tests {
		if got := translateModelForBedrock(tt.in); got != tt.want {
			t.Errorf("translateModelForBedrock(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeMessagesServer answers POST /v1/messages with the given content blocks
// and records the last request body.
func fakeMessagesServer(t *testing.T, status int, content string) (*httptest.Server, *[]byte) {
	t.Helper()
	var (
		mu   sync.Mutex
		last []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = body
		mu.Unlock()
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			return
		}
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",`+
			`"content":`+content+`,"stop_reason":"end_turn","stop_sequence":null,`+
			`"usage":{"input_tokens":12,"output_tokens":7}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		APIKey:         "test-key",
		MaxTokens:      1024,
		RequestOptions: []option.RequestOption{option.WithBaseURL(url + "/"), option.WithMaxRetries(0)},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestComplete(t *testing.T) {
	srv, last := fakeMessagesServer(t, http.StatusOK, `[{"type":"text","text":"first"},{"type":"text","text":"second"}]`)
	c := testClient(t, srv.URL)

	got, err := c.Complete(context.Background(), "be brief", "break down phase 1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "first\nsecond" {
		t.Errorf("Complete = %q, want %q", got, "first\nsecond")
	}

	in, out := c.Tracker().Total()
	if in != 12 || out != 7 || c.Tracker().Calls() != 1 {
		t.Errorf("tracker = (%d, %d, %d calls), want (12, 7, 1)", in, out, c.Tracker().Calls())
	}

	var req struct {
		MaxTokens int `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	if err := json.Unmarshal(*last, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.MaxTokens != 1024 {
		t.Errorf("max_tokens = %d, want 1024", req.MaxTokens)
	}
	if len(req.System) != 1 || req.System[0].Text != "be brief" {
		t.Errorf("system = %+v, want [be brief]", req.System)
	}
}

func TestComplete_EmptyReply(t *testing.T) {
	srv, _ := fakeMessagesServer(t, http.StatusOK, `[]`)
	c := testClient(t, srv.URL)

	if _, err := c.Complete(context.Background(), "", "hi"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv, _ := fakeMessagesServer(t, http.StatusInternalServerError, "")
	c := testClient(t, srv.URL)

	if _, err := c.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error from failing API")
	}
	if c.Tracker().Calls() != 0 {
		t.Errorf("Calls = %d, want 0 after failure", c.Tracker().Calls())
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1_000_000, 0)
	tr.Add(0, 1_000_000)

	if in, out := tr.Total(); in != 1_000_000 || out != 1_000_000 {
		t.Errorf("Total = (%d, %d), want (1000000, 1000000)", in, out)
	}
	if got := tr.Cost(); got != 18.0 {
		t.Errorf("Cost = %v, want 18", got)
	}
	if !strings.Contains(tr.String(), "2 calls") {
		t.Errorf("String = %q, want call count", tr.String())
	}

	tr.Reset()
	if tr.Calls() != 0 {
		t.Errorf("Calls after Reset = %d, want 0", tr.Calls())
	}
}
