package volcproto

import (
	"bytes"
	"testing"
)

func TestRoundTripStartConnection(t *testing.T) {
	raw, err := BuildStartConnection()
	if err != nil {
		t.Fatalf("BuildStartConnection: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Event != EventStartConnection {
		t.Fatalf("Event = %v, want %v", m.Event, EventStartConnection)
	}
	if m.SessionID != "" {
		t.Fatalf("expected no session_id on a connection-lifecycle event, got %q", m.SessionID)
	}
}

func TestRoundTripStartSessionCarriesSessionID(t *testing.T) {
	raw, err := BuildStartSession("sess-1", []byte(`{"voice":"x"}`))
	if err != nil {
		t.Fatalf("BuildStartSession: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.SessionID != "sess-1" {
		t.Fatalf("SessionID = %q, want %q", m.SessionID, "sess-1")
	}
	if !bytes.Equal(m.Payload, []byte(`{"voice":"x"}`)) {
		t.Fatalf("Payload = %q, want %q", m.Payload, `{"voice":"x"}`)
	}
}

func TestRoundTripTaskRequest(t *testing.T) {
	raw, err := BuildTaskRequest("sess-1", []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("BuildTaskRequest: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Event != EventTaskRequest || m.SessionID != "sess-1" {
		t.Fatalf("got event=%v session=%q", m.Event, m.SessionID)
	}
}

func TestRoundTripConnectionStartedHasConnectID(t *testing.T) {
	raw, err := Encode(Message{
		Type:          MsgFullServerResponse,
		Flag:          FlagWithEvent,
		Serialization: SerializationJSON,
		Event:         EventConnectionStarted,
		ConnectID:     "conn-xyz",
		Payload:       []byte("{}"),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.ConnectID != "conn-xyz" {
		t.Fatalf("ConnectID = %q, want %q", m.ConnectID, "conn-xyz")
	}
	if m.SessionID != "" {
		t.Fatalf("expected no session_id on CONNECTION_STARTED, got %q", m.SessionID)
	}
}

func TestAudioOnlyServerWithPositiveSequence(t *testing.T) {
	raw, err := Encode(Message{
		Type:        MsgAudioOnlyServer,
		Flag:        FlagPositiveSeq,
		Sequence:    7,
		Payload:     []byte{1, 2, 3, 4},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Sequence != 7 {
		t.Fatalf("Sequence = %d, want 7", m.Sequence)
	}
	if !bytes.Equal(m.Payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("Payload = %v, want [1 2 3 4]", m.Payload)
	}
}

func TestErrorFrameCarriesErrorCode(t *testing.T) {
	raw, err := Encode(Message{
		Type:      MsgError,
		Flag:      FlagNoSeq,
		ErrorCode: 4001,
		Payload:   []byte("bad request"),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.ErrorCode != 4001 {
		t.Fatalf("ErrorCode = %d, want 4001", m.ErrorCode)
	}
	if string(m.Payload) != "bad request" {
		t.Fatalf("Payload = %q, want %q", m.Payload, "bad request")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	raw, err := BuildFinishConnection()
	if err != nil {
		t.Fatalf("BuildFinishConnection: %v", err)
	}
	raw = append(raw, 0xFF)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected Decode to reject trailing bytes")
	}
}
