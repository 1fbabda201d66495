package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"google.golang.org/genai"

	"github.com/vango-go/vai-intake/pkg/core/types"
)

type stubBackend struct {
	reply *Reply
	err   error
	got   Request
	reset int
}

func (s *stubBackend) Converse(ctx context.Context, req Request) (*Reply, error) {
	s.got = req
	return s.reply, s.err
}

func (s *stubBackend) Reset(ctx context.Context) error {
	s.reset++
	return errors.New("reset unsupported")
}

func TestController_PassesThroughReply(t *testing.T) {
	backend := &stubBackend{reply: &Reply{Text: " How long have you had it? ", Symptoms: []string{"headache"}}}
	c := NewController(backend)

	prior := []types.Turn{{Role: types.RoleAssistant, Text: "Hello"}}
	reply := c.Converse(context.Background(), "I have a headache", prior, "en-IN", []string{"fever"})

	if reply.Degraded {
		t.Fatal("reply should not be degraded")
	}
	if reply.Text != "How long have you had it?" {
		t.Fatalf("text = %q", reply.Text)
	}
	if len(reply.Symptoms) != 1 || reply.Symptoms[0] != "headache" {
		t.Fatalf("symptoms = %v", reply.Symptoms)
	}
	if backend.got.Message != "I have a headache" || len(backend.got.History) != 1 || backend.got.Language != "en-IN" {
		t.Fatalf("request = %+v", backend.got)
	}
	if len(backend.got.KnownSymptoms) != 1 {
		t.Fatalf("known symptoms = %v", backend.got.KnownSymptoms)
	}
}

func TestController_DegradesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
	}{
		{name: "error", backend: &stubBackend{err: errors.New("503")}},
		{name: "empty", backend: &stubBackend{reply: &Reply{Text: "  "}}},
		{name: "nil reply", backend: &stubBackend{}},
		{name: "no backend", backend: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.backend, WithFallbackReply("Please tell me more."))
			reply := c.Converse(context.Background(), "hi", nil, "en-IN", nil)
			if !reply.Degraded {
				t.Fatal("expected degraded reply")
			}
			if reply.Text != "Please tell me more." {
				t.Fatalf("text = %q", reply.Text)
			}
		})
	}
}

func TestController_ResetIgnoresErrors(t *testing.T) {
	backend := &stubBackend{}
	c := NewController(backend)
	c.Reset(context.Background())
	if backend.reset != 1 {
		t.Fatalf("reset calls = %d, want 1", backend.reset)
	}
	NewController(nil).Reset(context.Background())
}

func TestHTTPBackend_ConverseWireFormat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultChatPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req["message"] != "I have a headache" || req["language"] != "en-IN" {
			t.Errorf("request = %v", req)
		}
		history, _ := req["conversation_history"].([]any)
		if len(history) != 2 {
			t.Errorf("history len = %d, want 2", len(history))
		} else if first, _ := history[0].(map[string]any); first["role"] != "user" || first["content"] != "hello" {
			t.Errorf("history[0] = %v", history[0])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":            "How long have you had it?",
			"collected_symptoms":  []string{"headache"},
			"follow_up_questions": []string{"2 days"},
			"severity_assessment": "MODERATE",
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "tok")
	reply, err := b.Converse(context.Background(), Request{
		Message: "I have a headache",
		History: []types.Turn{
			{Role: types.RoleUser, Text: "hello"},
			{Role: types.RoleAssistant, Text: "Hi, what brings you in?"},
		},
		Language: "en-IN",
	})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply.Text != "How long have you had it?" || reply.Severity != "MODERATE" {
		t.Fatalf("reply = %+v", reply)
	}
	if len(reply.Symptoms) != 1 || len(reply.FollowUps) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestHTTPBackend_EmptyHistoryEncodesArray(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&req)
		if string(req["conversation_history"]) != "[]" {
			t.Errorf("conversation_history = %s, want []", req["conversation_history"])
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	if _, err := NewHTTPBackend(srv.URL, "").Converse(context.Background(), Request{Message: "hi"}); err != nil {
		t.Fatalf("Converse: %v", err)
	}
}

func TestHTTPBackend_StatusAndReset(t *testing.T) {
	t.Parallel()

	var resetCalled atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DefaultResetPath:
			resetCalled.Store(true)
			_, _ = w.Write([]byte(`{"message":"Conversation reset successfully"}`))
		default:
			http.Error(w, "chat failed", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "")
	if _, err := b.Converse(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected error on 500")
	}
	if err := b.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !resetCalled.Load() {
		t.Fatal("reset endpoint not called")
	}

	// The controller turns the 500 into the fallback reply.
	reply := NewController(b).Converse(context.Background(), "hi", nil, "en-IN", nil)
	if !reply.Degraded || reply.Text != DefaultFallbackReply {
		t.Fatalf("reply = %+v, want fallback", reply)
	}
}

type fakeModels struct {
	raw      string
	err      error
	contents []*genai.Content
	cfg      *genai.GenerateContentConfig
	model    string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.raw, genai.RoleModel)}},
	}, nil
}

func TestGeminiBackend_ParsesDataBlock(t *testing.T) {
	models := &fakeModels{raw: "How long have you had it?\n<data>\n{\"symptoms\": [\"headache\"], \"severity_score\": 7, \"severity_band\": null, \"intake_complete\": false, \"follow_ups\": [\"2 days\", \"A week\"]}\n</data>"}
	g := newGeminiBackend(models, "")

	history := make([]types.Turn, 14)
	for i := range history {
		history[i] = types.Turn{Role: types.RoleUser, Text: "t"}
	}
	reply, err := g.Converse(context.Background(), Request{Message: "I have a headache", History: history, Language: "en-IN"})
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if reply.Text != "How long have you had it?" {
		t.Fatalf("text = %q", reply.Text)
	}
	if len(reply.Symptoms) != 1 || reply.Symptoms[0] != "headache" {
		t.Fatalf("symptoms = %v", reply.Symptoms)
	}
	if reply.Severity != "HIGH" {
		t.Fatalf("severity = %q, want HIGH from score", reply.Severity)
	}
	if len(reply.FollowUps) != 2 {
		t.Fatalf("follow ups = %v", reply.FollowUps)
	}
	if models.model != DefaultGeminiModel {
		t.Fatalf("model = %q", models.model)
	}
	if len(models.contents) != maxHistoryTurns+1 {
		t.Fatalf("contents = %d, want %d", len(models.contents), maxHistoryTurns+1)
	}
	if models.cfg.SystemInstruction == nil {
		t.Fatal("expected system instruction")
	}
}

func TestGeminiBackend_Errors(t *testing.T) {
	if _, err := newGeminiBackend(&fakeModels{err: errors.New("quota")}, "m").Converse(context.Background(), Request{Message: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := newGeminiBackend(&fakeModels{raw: "  "}, "m").Converse(context.Background(), Request{Message: "x"}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestParseModelOutput_NoBlock(t *testing.T) {
	reply := parseModelOutput("Please describe your symptoms.")
	if reply.Text != "Please describe your symptoms." || reply.Symptoms != nil {
		t.Fatalf("reply = %+v", reply)
	}
	reply = parseModelOutput("Thanks.\n<data>{not json}</data>")
	if reply.Text != "Thanks." {
		t.Fatalf("text = %q", reply.Text)
	}
}

func TestSeverityBand(t *testing.T) {
	tests := map[int]string{10: "CRITICAL", 9: "CRITICAL", 7: "HIGH", 5: "MODERATE", 2: "LOW", 0: ""}
	for score, want := range tests {
		if got := severityBand(score); got != want {
			t.Fatalf("severityBand(%d) = %q, want %q", score, got, want)
		}
	}
}
