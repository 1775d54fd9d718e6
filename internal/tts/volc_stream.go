package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
	"github.com/hubenschmidt/voice-call-gateway/internal/volcproto"
)

// VolcStreamConfig configures the Volcengine/Doubao bidirectional
// streaming TTS client. Field names mirror tts_manager.py's
// doubao_* configure() keys.
type VolcStreamConfig struct {
	WSURL      string
	AppKey     string
	AccessKey  string
	ResourceID string
	VoiceType  string
	Namespace  string // default "BidirectionalTTS"
	SampleRate int    // default 24000
	EnableTimestamp        bool
	DisableMarkdownFilter  bool
	DialTimeout time.Duration
}

func (c VolcStreamConfig) normalized() VolcStreamConfig {
	if c.Namespace == "" {
		c.Namespace = "BidirectionalTTS"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 24000
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// ConfigError reports which required Doubao config fields are missing,
// mirroring TTSManager.configure()'s upfront validation.
func (c VolcStreamConfig) ConfigError() error {
	var missing []string
	if c.WSURL == "" {
		missing = append(missing, "ws_url")
	}
	if c.AppKey == "" {
		missing = append(missing, "app_key")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if c.ResourceID == "" {
		missing = append(missing, "resource_id")
	}
	if c.VoiceType == "" {
		missing = append(missing, "voice_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("tts: missing required doubao config fields: %v", missing)
	}
	return nil
}

// VolcStreamClient synthesizes speech via Volcengine/Doubao's
// bidirectional websocket TTS protocol. Grounded on tts_manager.py's
// _synthesize_stream_doubao and internal/volcproto's byte-exact framing.
type VolcStreamClient struct {
	cfg VolcStreamConfig
}

// NewVolcStreamClient creates a client; returns an error immediately if
// required config fields are missing (fail fast, as in configure()).
func NewVolcStreamClient(cfg VolcStreamConfig) (*VolcStreamClient, error) {
	cfg = cfg.normalized()
	if err := cfg.ConfigError(); err != nil {
		return nil, err
	}
	return &VolcStreamClient{cfg: cfg}, nil
}

// Synthesize is not supported by the streaming-only Doubao provider,
// mirroring TTSManager.synthesize()'s explicit rejection for doubao_ws.
func (c *VolcStreamClient) Synthesize(ctx context.Context, text, voiceID string) (*Result, error) {
	return nil, fmt.Errorf("tts: doubao_ws provider only supports streaming synthesis")
}

type doubaoRequestBase struct {
	User      map[string]string      `json:"user"`
	Namespace string                 `json:"namespace"`
	ReqParams map[string]interface{} `json:"req_params"`
	Event     int32                  `json:"event,omitempty"`
}

func (c *VolcStreamClient) buildRequestBase() doubaoRequestBase {
	additions, _ := json.Marshal(map[string]bool{"disable_markdown_filter": c.cfg.DisableMarkdownFilter})
	return doubaoRequestBase{
		User:      map[string]string{"uid": uuid.NewString()},
		Namespace: c.cfg.Namespace,
		ReqParams: map[string]interface{}{
			"speaker": c.cfg.VoiceType,
			"audio_params": map[string]interface{}{
				"format":           "pcm",
				"sample_rate":      c.cfg.SampleRate,
				"enable_timestamp": c.cfg.EnableTimestamp,
			},
			"additions": string(additions),
		},
	}
}

// SynthesizeStream opens one websocket connection per call and streams
// decoded PCM chunks as AUDIO_ONLY_SERVER frames arrive.
func (c *VolcStreamClient) SynthesizeStream(ctx context.Context, text, voiceID string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 8)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		if err := c.run(ctx, text, chunks); err != nil {
			metrics.Errors.WithLabelValues("tts", "doubao_ws").Inc()
			errc <- err
		}
	}()

	return chunks, errc
}

func (c *VolcStreamClient) run(ctx context.Context, text string, chunks chan<- []byte) error {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppKey)
	header.Set("X-Api-Access-Key", c.cfg.AccessKey)
	header.Set("X-Api-Resource-Id", c.cfg.ResourceID)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	dialer := &websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("tts: doubao dial: %w", err)
	}
	defer conn.Close()

	sessionID := uuid.NewString()

	startConn, err := volcproto.BuildStartConnection()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, startConn); err != nil {
		return fmt.Errorf("tts: doubao send start_connection: %w", err)
	}
	if _, err := c.expectEvent(conn, volcproto.EventConnectionStarted, "start_connection"); err != nil {
		return err
	}

	base := c.buildRequestBase()
	base.Event = int32(volcproto.EventStartSession)
	startSessionPayload, err := json.Marshal(base)
	if err != nil {
		return err
	}
	startSessionFrame, err := volcproto.BuildStartSession(sessionID, startSessionPayload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, startSessionFrame); err != nil {
		return fmt.Errorf("tts: doubao send start_session: %w", err)
	}
	if _, err := c.expectEvent(conn, volcproto.EventSessionStarted, "start_session"); err != nil {
		return err
	}

	base.Event = int32(volcproto.EventTaskRequest)
	base.ReqParams["text"] = text
	taskPayload, err := json.Marshal(base)
	if err != nil {
		return err
	}
	taskFrame, err := volcproto.BuildTaskRequest(sessionID, taskPayload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, taskFrame); err != nil {
		return fmt.Errorf("tts: doubao send task_request: %w", err)
	}

	finishSession, err := volcproto.BuildFinishSession(sessionID)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, finishSession); err != nil {
		return fmt.Errorf("tts: doubao send finish_session: %w", err)
	}

	defer func() {
		if finishConn, err := volcproto.BuildFinishConnection(); err == nil {
			_ = conn.WriteMessage(websocket.BinaryMessage, finishConn)
		}
	}()

	audioReceived := false
	for {
		msg, err := c.receive(conn)
		if err != nil {
			return err
		}

		switch msg.Type {
		case volcproto.MsgAudioOnlyServer:
			if len(msg.Payload) > 0 {
				audioReceived = true
				select {
				case chunks <- msg.Payload:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		case volcproto.MsgError:
			return fmt.Errorf("tts: doubao streaming error code=%d", msg.ErrorCode)
		case volcproto.MsgFullServerResponse:
			switch msg.Event {
			case volcproto.EventSessionFinished:
				if !audioReceived {
					return fmt.Errorf("tts: doubao stream returned no audio payload")
				}
				return nil
			case volcproto.EventSessionFailed, volcproto.EventConnectionFailed:
				return fmt.Errorf("tts: doubao session failed, event=%d", msg.Event)
			}
		}
	}
}

func (c *VolcStreamClient) receive(conn *websocket.Conn) (volcproto.Message, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return volcproto.Message{}, fmt.Errorf("tts: doubao websocket read: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return volcproto.Message{}, fmt.Errorf("tts: doubao websocket returned unexpected frame type %d", msgType)
	}
	return volcproto.Decode(data)
}

func (c *VolcStreamClient) expectEvent(conn *websocket.Conn, expected volcproto.EventType, stage string) (volcproto.Message, error) {
	msg, err := c.receive(conn)
	if err != nil {
		return msg, err
	}
	if msg.Type == volcproto.MsgError {
		return msg, fmt.Errorf("tts: doubao %s failed, error_code=%d", stage, msg.ErrorCode)
	}
	if msg.Type != volcproto.MsgFullServerResponse {
		return msg, fmt.Errorf("tts: doubao %s unexpected message type=%v event=%v", stage, msg.Type, msg.Event)
	}
	if msg.Event == expected {
		return msg, nil
	}
	if msg.Event == volcproto.EventConnectionFailed || msg.Event == volcproto.EventSessionFailed {
		return msg, fmt.Errorf("tts: doubao %s failed, event=%d", stage, msg.Event)
	}
	return msg, fmt.Errorf("tts: doubao %s unexpected event: got=%d want=%d", stage, msg.Event, expected)
}

var _ Client = (*VolcStreamClient)(nil)
