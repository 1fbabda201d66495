package types

import (
	"encoding/json"
	"testing"
)

func TestNewConversationSession_Defaults(t *testing.T) {
	s := NewConversationSession("")
	if s.Language != DefaultLanguage {
		t.Fatalf("language = %q, want %q", s.Language, DefaultLanguage)
	}
	if s.ID == "" {
		t.Fatal("expected session id")
	}
	other := NewConversationSession("hi-IN")
	if other.ID == s.ID {
		t.Fatal("session ids must be unique")
	}
	if other.Language != "hi-IN" {
		t.Fatalf("language = %q, want hi-IN", other.Language)
	}
}

func TestConversationSession_AppendKeepsOrder(t *testing.T) {
	s := NewConversationSession("en-IN")
	s.AppendUser("I have a headache", SourceVoice)
	s.AppendAssistant("How long have you had it?")
	s.AppendUser("since yesterday", SourceText)

	if len(s.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(s.Turns))
	}
	if s.Turns[0].Role != RoleUser || s.Turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected roles: %+v", s.Turns)
	}
	if s.Turns[2].Source != SourceText {
		t.Fatalf("source = %q, want text", s.Turns[2].Source)
	}
	if got := s.UserTurnCount(); got != 2 {
		t.Fatalf("UserTurnCount = %d, want 2", got)
	}
}

func TestConversationSession_CloneIsIndependent(t *testing.T) {
	s := NewConversationSession("en-IN")
	s.AppendUser("cough", SourceVoice)
	s.Symptoms.Add("cough")

	c := s.Clone()
	s.AppendUser("fever", SourceVoice)
	s.Symptoms.Add("fever")

	if len(c.Turns) != 1 {
		t.Fatalf("clone turns = %d, want 1", len(c.Turns))
	}
	if c.Symptoms.Contains("fever") {
		t.Fatal("clone symptoms should not see later additions")
	}
}

func TestSymptomSet_SuppressesDuplicates(t *testing.T) {
	var s SymptomSet
	if n := s.Add("Headache", " headache ", "", "nausea"); n != 2 {
		t.Fatalf("added = %d, want 2", n)
	}
	if n := s.Add("NAUSEA"); n != 0 {
		t.Fatalf("added = %d, want 0", n)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if !s.Contains("headache") {
		t.Fatal("expected headache")
	}
	list := s.List()
	if list[0] != "Headache" || list[1] != "nausea" {
		t.Fatalf("list = %v", list)
	}
}

func TestSymptomSet_JSON(t *testing.T) {
	var empty SymptomSet
	data, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("empty set = %s, want []", data)
	}

	var s SymptomSet
	if err := json.Unmarshal([]byte(`["fever","Fever","chills"]`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
}

func TestAudioClip_SizeAndExtension(t *testing.T) {
	var nilClip *AudioClip
	if nilClip.Size() != 0 {
		t.Fatal("nil clip size should be 0")
	}
	c := &AudioClip{Data: make([]byte, 10), MIMEType: "audio/wav"}
	if c.Size() != 10 {
		t.Fatalf("size = %d, want 10", c.Size())
	}
	if c.Extension() != "wav" {
		t.Fatalf("ext = %q, want wav", c.Extension())
	}
	c.MIMEType = "audio/webm"
	if c.Extension() != "webm" {
		t.Fatalf("ext = %q, want webm", c.Extension())
	}
}
