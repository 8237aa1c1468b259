package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"tutoring-chat/internal/domain"
)

func TestDecode_Commands(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, cmd Command)
	}{
		{
			name:  "join",
			frame: `{"event":"join-chat","ref":"r1","data":{"roomId":"R1"}}`,
			check: func(t *testing.T, cmd Command) {
				if c, ok := cmd.(JoinChat); !ok || c.RoomID != "R1" {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "leave",
			frame: `{"event":"leave-chat","data":{"roomId":"R1"}}`,
			check: func(t *testing.T, cmd Command) {
				if _, ok := cmd.(LeaveChat); !ok {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "send",
			frame: `{"event":"send-message","data":{"roomId":"R1","content":"hello","type":"text"}}`,
			check: func(t *testing.T, cmd Command) {
				c, ok := cmd.(SendMessage)
				if !ok || c.Content != "hello" || c.Type != "text" {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "send keeps empty content for the store to judge",
			frame: `{"event":"send-message","data":{"roomId":"R1","content":""}}`,
			check: func(t *testing.T, cmd Command) {
				if _, ok := cmd.(SendMessage); !ok {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "location at the equator",
			frame: `{"event":"share-location","data":{"roomId":"R1","location":{"lat":0,"lng":-77.03,"accuracy":12.5}}}`,
			check: func(t *testing.T, cmd Command) {
				c, ok := cmd.(ShareLocation)
				if !ok || *c.Location.Lat != 0 || *c.Location.Lng != -77.03 || *c.Location.Accuracy != 12.5 {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "typing start",
			frame: `{"event":"typing-start","data":{"roomId":"R1"}}`,
			check: func(t *testing.T, cmd Command) {
				if c, ok := cmd.(Typing); !ok || !c.Active {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "typing stop",
			frame: `{"event":"typing-stop","data":{"roomId":"R1"}}`,
			check: func(t *testing.T, cmd Command) {
				if c, ok := cmd.(Typing); !ok || c.Active {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "mark read zero",
			frame: `{"event":"mark-messages-read","data":{"roomId":"R1","upTo":0}}`,
			check: func(t *testing.T, cmd Command) {
				if c, ok := cmd.(MarkRead); !ok || *c.UpTo != 0 {
					t.Errorf("unexpected command %#v", cmd)
				}
			},
		},
		{
			name:  "offer keeps the full payload",
			frame: `{"event":"webrtc-offer","data":{"to":"bob","sdp":"v=0"}}`,
			check: func(t *testing.T, cmd Command) {
				c, ok := cmd.(Signal)
				if !ok || c.Kind != SignalOffer || c.To != "bob" {
					t.Fatalf("unexpected command %#v", cmd)
				}
				var payload map[string]string
				if err := json.Unmarshal(c.Payload, &payload); err != nil || payload["sdp"] != "v=0" {
					t.Errorf("payload not forwarded: %s", c.Payload)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cmd, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, cmd)
		})
	}
}

func TestDecode_SignalKinds(t *testing.T) {
	for _, kind := range []SignalKind{SignalCallRequest, SignalCallResponse, SignalOffer, SignalAnswer, SignalICECandidate} {
		frame := `{"event":"` + string(kind) + `","data":{"to":"bob"}}`
		_, cmd, err := Decode([]byte(frame))
		if err != nil {
			t.Fatalf("%s: unexpected error %v", kind, err)
		}
		if c := cmd.(Signal); c.Kind != kind {
			t.Errorf("kind = %s, want %s", c.Kind, kind)
		}
	}
}

func TestDecode_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantRef string
	}{
		{"not json", `hello`, ""},
		{"missing event", `{"data":{"roomId":"R1"}}`, ""},
		{"missing event keeps ref", `{"ref":"r3","data":{"roomId":"R1"}}`, "r3"},
		{"unknown event", `{"event":"explode","ref":"r9","data":{}}`, "r9"},
		{"missing data", `{"event":"join-chat","ref":"r2"}`, "r2"},
		{"null data", `{"event":"join-chat","data":null}`, ""},
		{"missing room", `{"event":"join-chat","data":{}}`, ""},
		{"wrong field type", `{"event":"join-chat","data":{"roomId":42}}`, ""},
		{"missing upTo", `{"event":"mark-messages-read","data":{"roomId":"R1"}}`, ""},
		{"negative upTo", `{"event":"mark-messages-read","data":{"roomId":"R1","upTo":-1}}`, ""},
		{"latitude out of range", `{"event":"share-location","data":{"roomId":"R1","location":{"lat":91,"lng":0}}}`, ""},
		{"longitude out of range", `{"event":"share-location","data":{"roomId":"R1","location":{"lat":0,"lng":181}}}`, ""},
		{"missing location", `{"event":"share-location","data":{"roomId":"R1"}}`, ""},
		{"negative accuracy", `{"event":"share-location","data":{"roomId":"R1","location":{"lat":0,"lng":0,"accuracy":-1}}}`, ""},
		{"signal without target", `{"event":"call-request","data":{}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, cmd, err := Decode([]byte(tt.frame))
			if !errors.Is(err, domain.ErrInvalidPayload) {
				t.Fatalf("Decode() error = %v, want invalid payload", err)
			}
			if cmd != nil {
				t.Errorf("Decode() returned command %#v alongside error", cmd)
			}
			if ref != tt.wantRef {
				t.Errorf("ref = %q, want %q", ref, tt.wantRef)
			}
		})
	}
}

func TestDecode_ValidationMessageUsesWireNames(t *testing.T) {
	_, _, err := Decode([]byte(`{"event":"join-chat","data":{}}`))
	if err == nil || !strings.Contains(err.Error(), "roomId") {
		t.Errorf("error should name the wire field, got %v", err)
	}
}
