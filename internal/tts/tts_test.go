package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voice-call-gateway/internal/volcproto"
)

func TestMockClientProducesNoAudio(t *testing.T) {
	ctx := context.Background()
	c := NewMockClient()
	res, err := c.Synthesize(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(res.Audio) != 0 {
		t.Fatalf("expected empty audio, got %d bytes", len(res.Audio))
	}
}

func TestHTTPClientJSONPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Voice != "en_US-lessac-low" {
			t.Errorf("voice = %q, want en_US-lessac-low", body.Voice)
		}
		w.Write([]byte("FAKEAUDIO"))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{
		Style:           StyleJSONPost,
		BaseURL:         srv.URL,
		Path:            "/synthesize",
		VoiceModels:     map[string]string{"fast": "en_US-lessac-low"},
		DefaultVoiceKey: "fast",
	}, srv.Client())

	res, err := c.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(res.Audio) != "FAKEAUDIO" {
		t.Fatalf("Audio = %q, want FAKEAUDIO", res.Audio)
	}
}

func TestHTTPClientQueryStreamChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") != "hello there" {
			t.Errorf("text query param missing/wrong: %q", r.URL.Query().Get("text"))
		}
		w.Write([]byte("chunk-one"))
		w.(http.Flusher).Flush()
		w.Write([]byte("chunk-two"))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{
		Style:             StyleQueryStream,
		BaseURL:           srv.URL,
		Path:              "/tts",
		StaticQueryParams: map[string]string{"text_lang": "zh"},
		StreamChunkSize:   4096,
	}, srv.Client())

	chunks, errc := c.SynthesizeStream(context.Background(), "hello there", "")
	var got []byte
	for b := range chunks {
		got = append(got, b...)
	}
	if err := <-errc; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if string(got) != "chunk-onechunk-two" {
		t.Fatalf("got %q, want concatenated chunks", got)
	}
}

func TestVolcStreamConfigRequiresFields(t *testing.T) {
	_, err := NewVolcStreamClient(VolcStreamConfig{})
	if err == nil {
		t.Fatal("expected error for missing required doubao config fields")
	}
}

func TestVolcStreamClientSynthesizeRejected(t *testing.T) {
	c, err := NewVolcStreamClient(VolcStreamConfig{
		WSURL: "ws://example", AppKey: "a", AccessKey: "b", ResourceID: "c", VoiceType: "d",
	})
	if err != nil {
		t.Fatalf("NewVolcStreamClient: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "text", ""); err == nil {
		t.Fatal("expected Synthesize to be rejected for the streaming-only doubao_ws provider")
	}
}

var wsUpgrader = websocket.Upgrader{}

func TestVolcStreamClientSynthesizeStreamHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		// start_connection -> CONNECTION_STARTED
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		reply, _ := volcproto.Encode(volcproto.Message{
			Type: volcproto.MsgFullServerResponse, Flag: volcproto.FlagWithEvent,
			Event: volcproto.EventConnectionStarted, ConnectID: "c1", Payload: []byte("{}"),
		})
		conn.WriteMessage(websocket.BinaryMessage, reply)

		// start_session -> SESSION_STARTED
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		reply, _ = volcproto.Encode(volcproto.Message{
			Type: volcproto.MsgFullServerResponse, Flag: volcproto.FlagWithEvent,
			Event: volcproto.EventSessionStarted, SessionID: "s1", Payload: []byte("{}"),
		})
		conn.WriteMessage(websocket.BinaryMessage, reply)

		// task_request (ignored) then finish_session (ignored)
		conn.ReadMessage()
		conn.ReadMessage()

		audioFrame, _ := volcproto.Encode(volcproto.Message{
			Type: volcproto.MsgAudioOnlyServer, Flag: volcproto.FlagNoSeq, Payload: []byte{1, 2, 3},
		})
		conn.WriteMessage(websocket.BinaryMessage, audioFrame)

		finished, _ := volcproto.Encode(volcproto.Message{
			Type: volcproto.MsgFullServerResponse, Flag: volcproto.FlagWithEvent,
			Event: volcproto.EventSessionFinished, SessionID: "s1", Payload: []byte("{}"),
		})
		conn.WriteMessage(websocket.BinaryMessage, finished)

		conn.ReadMessage() // finish_connection
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	c, err := NewVolcStreamClient(VolcStreamConfig{
		WSURL: wsURL, AppKey: "a", AccessKey: "b", ResourceID: "c", VoiceType: "d",
	})
	if err != nil {
		t.Fatalf("NewVolcStreamClient: %v", err)
	}

	chunks, errc := c.SynthesizeStream(context.Background(), "hello", "")
	var got []byte
	for b := range chunks {
		got = append(got, b...)
	}
	if err := <-errc; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}
