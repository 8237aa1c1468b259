package domain

import (
	"testing"
	"time"
)

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		in   string
		want MessageType
		ok   bool
	}{
		{"", MessageText, true},
		{"text", MessageText, true},
		{"image", MessageImage, true},
		{"file", MessageFile, true},
		{"location", MessageLocation, true},
		{"system", MessageSystem, true},
		{"video", "", false},
		{"TEXT", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMessageType(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseMessageType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMessageType_ClientSendable(t *testing.T) {
	for _, mt := range []MessageType{MessageText, MessageImage, MessageFile, MessageLocation} {
		if !mt.ClientSendable() {
			t.Errorf("%q should be client sendable", mt)
		}
	}
	if MessageSystem.ClientSendable() {
		t.Error("system messages must not be client sendable")
	}
}

func TestMessage_ReadBy(t *testing.T) {
	m := &Message{Seq: 5}
	if m.ReadBy(4) {
		t.Error("watermark 4 should not cover seq 5")
	}
	if !m.ReadBy(5) {
		t.Error("watermark 5 should cover seq 5")
	}
}

func TestNormalizeParticipants(t *testing.T) {
	got, err := NormalizeParticipants([]string{"student-1", "", "teacher-1", "student-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "student-1" || got[1] != "teacher-1" {
		t.Errorf("unexpected participants: %v", got)
	}

	if _, err := NormalizeParticipants([]string{"a", "a"}); err != ErrTooFewFounders {
		t.Errorf("expected ErrTooFewFounders, got %v", err)
	}
}

func TestRoom_HasParticipant(t *testing.T) {
	r := &Room{ID: "R1", Participants: []string{"a", "b"}}
	if !r.HasParticipant("a") || r.HasParticipant("c") {
		t.Error("HasParticipant returned wrong answer")
	}
}

func TestCredential_Expired(t *testing.T) {
	now := time.Now()
	c := &Credential{ExpiresAt: now.Add(time.Minute)}
	if c.Expired(now) {
		t.Error("credential should not be expired yet")
	}
	if !c.Expired(now.Add(time.Minute)) {
		t.Error("credential should be expired at its expiry instant")
	}
}
