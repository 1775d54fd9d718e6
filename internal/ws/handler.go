// Package ws implements the per-call WebSocket endpoint: the control-frame
// protocol, VAD-gated ASR ingestion, barge-in, and turn scheduling that
// drives internal/pipeline.Orchestrator.
//
// Grounded on original_source/websocket_handler.py's websocket_endpoint —
// the per-connection receive loop, preroll sizing, and schedule_turn
// closure are ported from there; the control-frame shapes follow the
// {type, data} envelope this repository's specification names.
package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/voice-call-gateway/internal/asr"
	"github.com/hubenschmidt/voice-call-gateway/internal/audio"
	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
	"github.com/hubenschmidt/voice-call-gateway/internal/pipeline"
	"github.com/hubenschmidt/voice-call-gateway/internal/session"
	"github.com/hubenschmidt/voice-call-gateway/internal/trace"
	"github.com/hubenschmidt/voice-call-gateway/internal/vad"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// chunkDurationMs is the nominal duration of one inbound audio frame,
// matching websocket_handler.py's CHUNK_DURATION_MS.
const chunkDurationMs = 20

// DefaultASRFinalDelayMs matches asr.final_delay_ms's default (80ms):
// the wait between OnSpeechEnd and Final that gives the ASR backend a
// chance to flush trailing audio instead of truncating the last word.
const DefaultASRFinalDelayMs = 80

// maxASRFinalDelayMs is the configured ceiling for ASRFinalDelayMs.
const maxASRFinalDelayMs = 1000

// bargeInWaitTimeout bounds how long scheduling a new turn waits for a
// still-running one to unwind before starting anyway.
const bargeInWaitTimeout = 500 * time.Millisecond

// interruptWaitTimeout bounds the wait after a forced barge-in.
const interruptWaitTimeout = 300 * time.Millisecond

// PlaybackConfig carries client-side playback timing hints sent in
// client.config, ported from websocket_handler.py's _PLAYBACK_DEFAULTS /
// _resolve_playback_config.
type PlaybackConfig struct {
	StartupBufferMs  int `json:"startup_buffer_ms"`
	StartupMaxWaitMs int `json:"startup_max_wait_ms"`
	ScheduleLeadMs   int `json:"schedule_lead_ms"`
}

// DefaultPlaybackConfig matches _PLAYBACK_DEFAULTS.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{StartupBufferMs: 120, StartupMaxWaitMs: 120, ScheduleLeadMs: 30}
}

func (p PlaybackConfig) normalized() PlaybackConfig {
	if p == (PlaybackConfig{}) {
		p = DefaultPlaybackConfig()
	}
	p.StartupBufferMs = clampInt(p.StartupBufferMs, 0, 1000)
	p.StartupMaxWaitMs = clampInt(p.StartupMaxWaitMs, 0, 1000)
	p.ScheduleLeadMs = clampInt(p.ScheduleLeadMs, 0, 300)
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HandlerConfig holds the shared backend clients wired once at startup
// and reused across every call session.
type HandlerConfig struct {
	Sessions     *session.Manager
	ASR          *asr.Router
	ASREngine    string
	Orchestrator *pipeline.Orchestrator
	VAD          vad.Config
	VADSilero    *vad.SileroEngine
	Noise        *pipeline.NoiseClient
	TraceStore   *trace.Store
	Playback     PlaybackConfig

	// ASRFinalDelayMs is the wait between OnSpeechEnd and Final, letting
	// the ASR backend flush trailing audio instead of truncating the
	// last word. Zero means "no wait" and is honored as such; the
	// caller is responsible for supplying DefaultASRFinalDelayMs if it
	// wants the default. Clamped to [0, maxASRFinalDelayMs].
	ASRFinalDelayMs int
}

// Handler manages WebSocket call sessions.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a WebSocket handler with shared backend clients.
func NewHandler(cfg HandlerConfig) *Handler {
	cfg.Playback = cfg.Playback.normalized()
	cfg.ASRFinalDelayMs = clampInt(cfg.ASRFinalDelayMs, 0, maxASRFinalDelayMs)
	return &Handler{cfg: cfg}
}

// ServeHTTP upgrades the connection and runs the call session to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.runSession(conn)
}

// envelope is the control-frame shape: {"type": ..., "data": ...}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type helloData struct {
	ASREngine string `json:"asr_engine"`
}

type audioChunkData struct {
	Chunk string `json:"chunk"`
}

type textData struct {
	Text          string  `json:"text"`
	ReferenceText string  `json:"reference_text"`
	NoSpeechProb  float64 `json:"no_speech_prob"`
}

// callSession bundles the per-connection state the receive loop mutates:
// the session context, the ASR stream, VAD classifier/state machine/
// preroll, and the connection's outbound emit function.
type callSession struct {
	h    *Handler
	conn *websocket.Conn
	sess *session.Session

	sendMu sync.Mutex

	asrClient      asr.Client
	vadClassifier  *vad.Classifier
	vadState       *vad.StateMachine
	preRoll        *vad.PreRoll
	utteranceStart time.Time
	utteranceAudio []float32
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := h.cfg.Sessions.CreateSession()
	metrics.CallsActive.Inc()
	metrics.CallsTotal.Inc()
	defer func() {
		metrics.CallsActive.Dec()
		h.cfg.Sessions.RemoveSession(sess.ID)
	}()

	if h.cfg.TraceStore != nil {
		_ = h.cfg.TraceStore.CreateSession(sess.ID, "{}")
		defer func() { _ = h.cfg.TraceStore.EndSession(sess.ID) }()
	}

	cs := &callSession{
		h:             h,
		conn:          conn,
		sess:          sess,
		vadClassifier: vad.NewClassifierWithSilero(h.cfg.VAD, h.cfg.VADSilero),
		vadState:      vad.NewStateMachine(h.cfg.VAD),
		preRoll:       vad.NewPreRoll(h.cfg.VAD, chunkDurationMs),
	}

	engine := h.cfg.ASREngine
	asrClient, err := h.cfg.ASR.New(engine)
	if err != nil {
		slog.Error("asr backend unavailable", "session_id", sess.ID, "engine", engine, "error", err)
		return
	}
	cs.asrClient = asrClient

	slog.Info("call started", "session_id", sess.ID, "asr_engine", engine)
	defer func() {
		sess.CancelCurrentTasks()
		sess.WaitTrackedTasks(bargeInWaitTimeout)
		_ = cs.asrClient.Stop(ctx)
		slog.Info("call ended", "session_id", sess.ID)
	}()

	cs.send("server.hello", map[string]any{"session_id": sess.ID})
	cs.send("client.config", h.cfg.Playback)
	cs.send("avatar.state", map[string]any{"emotion": "neutral", "source": "init", "turn_id": 0})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cs.handleMessage(ctx, msgType, data)
	}
}

func (cs *callSession) send(msgType string, data any) {
	cs.sendMu.Lock()
	defer cs.sendMu.Unlock()

	payload, err := json.Marshal(envelope{Type: msgType, Data: marshalRaw(data)})
	if err != nil {
		slog.Error("marshal outbound message", "type", msgType, "error", err)
		return
	}
	if err = cs.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Error("write message", "type", msgType, "error", err)
	}
}

func marshalRaw(data any) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

func (cs *callSession) handleMessage(ctx context.Context, msgType int, data []byte) {
	if msgType == websocket.BinaryMessage {
		cs.processAudioFrame(ctx, data)
		return
	}
	if msgType != websocket.TextMessage {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "client.hello":
		var hello helloData
		_ = json.Unmarshal(env.Data, &hello)
		if hello.ASREngine != "" && cs.h.cfg.ASR.Has(hello.ASREngine) {
			if client, err := cs.h.cfg.ASR.New(hello.ASREngine); err == nil {
				_ = cs.asrClient.Stop(ctx)
				cs.asrClient = client
			}
		}

	case "input.audio_chunk":
		var chunk audioChunkData
		if err := json.Unmarshal(env.Data, &chunk); err != nil {
			return
		}
		pcm, err := audio.DecodeBase64(chunk.Chunk)
		if err != nil {
			return
		}
		cs.processAudioFrame(ctx, pcm)

	case "input.text":
		var in textData
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return
		}
		if in.Text == "" {
			return
		}
		cs.scheduleTurn(ctx, pipeline.TurnInput{
			Text:          in.Text,
			ReferenceText: in.ReferenceText,
			NoSpeechProb:  in.NoSpeechProb,
		})

	case "control.interrupt":
		cs.forceInterrupt()
	}
}

// processAudioFrame feeds one PCM16 frame through noise suppression (if
// configured), the VAD classifier, and the utterance state machine,
// pushing audio into the ASR stream while speech is active and replaying
// buffered preroll frames the instant speech is confirmed.
func (cs *callSession) processAudioFrame(ctx context.Context, frame []byte) {
	metrics.AudioChunks.Inc()

	if cs.h.cfg.Noise != nil {
		frame = cs.denoise(ctx, frame)
	}

	isSpeech := cs.vadClassifier.IsSpeech(frame, chunkDurationMs)
	event := cs.vadState.Update(isSpeech, chunkDurationMs)

	switch event {
	case vad.EventStart:
		metrics.SpeechSegments.Inc()
		cs.onSpeechStart(ctx, frame)
	case vad.EventEnd:
		cs.onSpeechEnd(ctx)
		return
	}

	if cs.vadState.Active() {
		cs.pushUtteranceAudio(ctx, frame)
	} else if event != vad.EventStart {
		cs.preRoll.Push(frame)
	}
}

func (cs *callSession) denoise(ctx context.Context, frame []byte) []byte {
	samples, _, err := audio.Decode(frame, audio.CodecPCM, asr.SampleRate)
	if err != nil {
		return frame
	}
	denoised, err := cs.h.cfg.Noise.Denoise(ctx, samples)
	if err != nil {
		return frame
	}
	return float32ToPCM16(denoised)
}

func (cs *callSession) onSpeechStart(ctx context.Context, frame []byte) {
	if cs.sess.State.Current() == session.StateSpeaking {
		cs.forceInterrupt()
	}

	cs.utteranceStart = time.Now()
	cs.utteranceAudio = cs.utteranceAudio[:0]

	if err := cs.asrClient.Start(ctx); err != nil {
		slog.Error("asr start", "session_id", cs.sess.ID, "error", err)
	}
	for _, f := range cs.preRoll.Drain() {
		cs.pushUtteranceAudio(ctx, f)
	}
	cs.pushUtteranceAudio(ctx, frame)
}

func (cs *callSession) pushUtteranceAudio(ctx context.Context, frame []byte) {
	if err := cs.asrClient.PushAudio(ctx, frame); err != nil {
		slog.Error("asr push audio", "session_id", cs.sess.ID, "error", err)
	}
	samples, _, err := audio.Decode(frame, audio.CodecPCM, asr.SampleRate)
	if err == nil {
		cs.utteranceAudio = append(cs.utteranceAudio, samples...)
	}

	if partial, err := cs.asrClient.Partial(ctx); err == nil && partial != "" && partial != cs.sess.LastPartialText {
		cs.sess.LastPartialText = partial
		cs.send("input.text_update", map[string]any{"text": partial, "is_final": false})
	}
}

func (cs *callSession) onSpeechEnd(ctx context.Context) {
	if err := cs.asrClient.OnSpeechEnd(ctx); err != nil {
		slog.Error("asr speech end", "session_id", cs.sess.ID, "error", err)
	}
	cs.waitASRFinalDelay(ctx)
	finalText, err := cs.asrClient.Final(ctx)
	if err != nil {
		slog.Error("asr final", "session_id", cs.sess.ID, "error", err)
	}
	if err := cs.asrClient.Stop(ctx); err != nil {
		slog.Error("asr stop", "session_id", cs.sess.ID, "error", err)
	}
	cs.sess.LastPartialText = ""

	if finalText == "" {
		return
	}

	cs.send("input.text_update", map[string]any{"text": finalText, "is_final": true})

	asrFinalMs := float64(time.Since(cs.utteranceStart).Milliseconds())
	audioSamples := cs.utteranceAudio
	cs.utteranceAudio = nil

	cs.scheduleTurn(ctx, pipeline.TurnInput{
		Text:         finalText,
		AudioSamples: audioSamples,
		ASRFinalMs:   asrFinalMs,
	})
}

// waitASRFinalDelay pauses before asrClient.Final is called, giving the
// backend a chance to flush trailing audio instead of truncating the
// last word. Skipped entirely when the delay is configured to 0, and
// cut short if the call context is cancelled (e.g. barge-in).
func (cs *callSession) waitASRFinalDelay(ctx context.Context) {
	delay := cs.h.cfg.ASRFinalDelayMs
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// scheduleTurn mirrors websocket_handler.py's schedule_turn: a still
// in-flight turn is cancelled and given a short grace period to unwind,
// then the new turn runs under the session's process lock so only one
// pipeline ever executes concurrently per call. Orchestrator.Run owns the
// THINKING transition and the cancel-token/history bookkeeping; this
// closure only owns scheduling and the client-visible state.update.
func (cs *callSession) scheduleTurn(ctx context.Context, in pipeline.TurnInput) {
	state := cs.sess.State.Current()
	if state == session.StateThinking || state == session.StateSpeaking || cs.sess.HasTrackedTasks() {
		cs.sess.CancelCurrentTasks()
		cs.sess.WaitTrackedTasks(bargeInWaitTimeout)
	}

	cs.send("state.update", map[string]any{"state": "thinking"})

	done := cs.sess.TrackTask(func() {})
	go func() {
		defer done()
		cs.sess.ProcessLock.Lock()
		defer cs.sess.ProcessLock.Unlock()

		if err := cs.h.cfg.Orchestrator.Run(ctx, cs.sess, in, cs.send); err != nil {
			slog.Error("turn failed", "session_id", cs.sess.ID, "error", err)
			metrics.Errors.WithLabelValues("turn", "pipeline_error").Inc()
		}
	}()
}

// forceInterrupt handles VAD-detected barge-in and explicit
// control.interrupt frames: it cancels the in-flight turn, transitions to
// INTERRUPTED, and tells the client so playback stops immediately.
func (cs *callSession) forceInterrupt() {
	cs.sess.CancelCurrentTasks()
	cs.sess.State.TransitionTo(session.StateInterrupted)
	cs.send("state.update", map[string]any{"state": "interrupted"})
	cs.sess.WaitTrackedTasks(interruptWaitTimeout)
}

func float32ToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := s
		if clamped > 1.0 {
			clamped = 1.0
		}
		if clamped < -1.0 {
			clamped = -1.0
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*math.MaxInt16)))
	}
	return buf
}
