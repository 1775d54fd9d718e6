package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/audio"
	"github.com/hubenschmidt/voice-call-gateway/internal/chunker"
	"github.com/hubenschmidt/voice-call-gateway/internal/emotion"
	"github.com/hubenschmidt/voice-call-gateway/internal/llm"
	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
	"github.com/hubenschmidt/voice-call-gateway/internal/prethink"
	"github.com/hubenschmidt/voice-call-gateway/internal/prompt"
	"github.com/hubenschmidt/voice-call-gateway/internal/session"
	"github.com/hubenschmidt/voice-call-gateway/internal/trace"
	"github.com/hubenschmidt/voice-call-gateway/internal/tts"
)

// EmitFunc sends one {"type": msgType, "data": data} frame to the call's
// websocket client. The orchestrator never touches the socket directly;
// internal/ws supplies this as a thin marshal-and-send closure.
type EmitFunc func(msgType string, data any)

// Config wires every backend the turn orchestrator drives. Only LLM and
// TTS are required; RAG, Classify, CallHistory, and Tracer are
// optional enrichments that are skipped (not errored) when nil.
type Config struct {
	LLM       *llm.Router
	LLMEngine string
	LLMModel  string

	TTS        *tts.Router
	TTSEngine  string
	TTSVoiceID string

	Prethink              *prethink.Engine
	PrethinkConfig        prethink.Config
	PrethinkFallbackModel string

	SystemPrompt          string
	HistoryWindowMessages int
	ChunkerMinSize        int
	ChunkerMaxSize        int
	TTSQueueCapacity      int
	OutputSampleRate      int

	RAG         *RAGClient
	CallHistory *CallHistoryClient
	Classify    *ClassifyClient

	Tracer *trace.Tracer
	Log    *slog.Logger
}

// Normalize clamps tunables to the bounds process_turn enforces and fills
// in defaults for anything left zero.
func (c Config) Normalize() Config {
	if c.HistoryWindowMessages < 2 {
		c.HistoryWindowMessages = 2
	}
	if c.HistoryWindowMessages > 120 {
		c.HistoryWindowMessages = 120
	}
	if c.ChunkerMinSize == 0 {
		c.ChunkerMinSize = 10
	}
	if c.ChunkerMaxSize == 0 {
		c.ChunkerMaxSize = 50
	}
	if c.TTSQueueCapacity < 1 {
		c.TTSQueueCapacity = 32
	}
	if c.OutputSampleRate == 0 {
		c.OutputSampleRate = 24000
	}
	if c.LLMModel == "" {
		c.LLMModel = "replyer"
	}
	if c.PrethinkFallbackModel == "" {
		c.PrethinkFallbackModel = c.LLMModel
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// Orchestrator drives one turn end-to-end: prompt assembly, streaming LLM
// generation with leading-emotion-tag resolution, sentence chunking, and
// a single in-order TTS worker that re-wraps raw PCM into playable WAV chunks.
//
// Grounded on original_source/websocket_handler.py's process_turn and
// teacher internal/pipeline/pipeline.go's streamLLMWithTTS/Event shape,
// restructured around the adapter packages built for this module.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator from cfg (normalized on entry).
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg.Normalize()}
}

// TurnInput is everything the orchestrator needs about a finalized user
// utterance; internal/ws assembles this once VAD+ASR produce a final
// transcript (or a direct text message arrives).
type TurnInput struct {
	Text          string
	AudioSamples  []float32 // optional, for parallel audio emotion classification
	ASRFinalMs    float64
	NoSpeechProb  float64
	ReferenceText string // optional, enables WER evaluation
}

// ttsJob is one chunk queued for synthesis.
type ttsJob struct {
	seq     int
	text    string
	isFinal bool
}

// Run executes one full turn against sess, emitting wire events via emit.
// It returns only after the turn completes, is cancelled by a barge-in, or
// errors; it never blocks past a barge-in signal on sess.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, in TurnInput, emit EmitFunc) error {
	cfg := o.cfg
	turnID := sess.NextTurnID()
	turnStart := time.Now()
	log := cfg.Log.With("session", sess.ID, "turn", turnID)

	sess.CreateCancelToken()
	sess.CancelPrethinkTask()
	sess.CreatePrethinkJob()
	sess.State.TransitionTo(session.StateThinking)

	if in.Text != "" {
		sess.AppendHistory("user", in.Text)
	}
	if in.ASRFinalMs > 0 {
		sess.Metrics.RecordASRLatency(time.Duration(in.ASRFinalMs) * time.Millisecond)
	}
	if in.NoSpeechProb > 0 {
		metrics.ASRNoSpeechProb.Observe(in.NoSpeechProb)
	}

	var runID string
	if cfg.Tracer != nil {
		runID = cfg.Tracer.StartRun()
	}

	// Fire-and-forget audio emotion classification, parallel to the LLM call.
	var classifyResult *ClassifyResult
	var classifyWG sync.WaitGroup
	if cfg.Classify != nil && len(in.AudioSamples) > 0 {
		classifyWG.Add(1)
		go func() {
			defer classifyWG.Done()
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if r, err := cfg.Classify.ClassifyEmotion(cctx, in.AudioSamples); err == nil {
				classifyResult = r
			} else {
				log.Warn("audio emotion classification failed", "error", err)
			}
		}()
	}

	ragContext := ""
	if cfg.RAG != nil && in.Text != "" {
		if text, err := cfg.RAG.RetrieveContext(ctx, in.Text); err != nil {
			log.Warn("rag retrieval failed", "error", err)
		} else {
			ragContext = text
		}
	}

	prethinkHint, prethinkAge, prethinkSourceTurn, prethinkHit := sess.ConsumePrethinkHint()
	var injectionBlock string
	if prethinkHit {
		injectionBlock = prompt.BuildPrethinkInjectionBlock(prethinkHint)
	}

	recentHistory := sess.History()
	fullPrompt := prompt.BuildTurnPrompt(injectionBlock, recentHistory, cfg.HistoryWindowMessages, "")
	systemPrompt := cfg.SystemPrompt

	ttsClient, err := cfg.TTS.New(cfg.TTSEngine)
	if err != nil {
		return fmt.Errorf("select tts engine: %w", err)
	}

	jobs := make(chan ttsJob, cfg.TTSQueueCapacity)
	var workerWG sync.WaitGroup
	var ttsMu sync.Mutex
	speakingOnce := sync.Once{}
	firstAudioOnce := sync.Once{}
	var firstTTSAudioAt time.Time
	markFirstAudio := func() {
		firstAudioOnce.Do(func() { firstTTSAudioAt = time.Now() })
	}
	audioChunksSent := 0
	segmentCount := 0

	sendSpeakingStateOnce := func() {
		speakingOnce.Do(func() {
			sess.State.TransitionTo(session.StateSpeaking)
			emit("state.update", map[string]any{"state": "speaking"})
		})
	}

	currentEmotion := ""
	sendAvatarState := func(em, source string) {
		norm := emotion.Normalize(em, "neutral")
		ttsMu.Lock()
		changed := norm != currentEmotion
		if changed {
			currentEmotion = norm
		}
		ttsMu.Unlock()
		if !changed {
			return
		}
		emit("avatar.state", map[string]any{
			"emotion": norm,
			"source":  source,
			"turn_id": turnID,
		})
	}

	worker := func() {
		defer workerWG.Done()
		var pcmCarry []byte
		detectedSR := cfg.OutputSampleRate
		srDetected := false

		for job := range jobs {
			if sess.IsCancelled() {
				continue
			}
			tag, cleaned := emotion.StripLeadingTag(job.text)
			_ = tag
			cleaned = strings.TrimSpace(cleaned)
			if cleaned == "" && !job.isFinal {
				continue
			}

			sendSpeakingStateOnce()
			emit("tts.text_stream", map[string]any{"seq": job.seq, "text": cleaned, "is_final": job.isFinal})

			start := time.Now()
			audioCh, errCh := ttsClient.SynthesizeStream(ctx, cleaned, cfg.TTSVoiceID)
			pendingAudio := make([]byte, 0, 16384)
			emitSize := 16384
			streamedAny := false

			for audioCh != nil || errCh != nil {
				select {
				case <-sess.CancelSignal():
					return
				case chunk, ok := <-audioCh:
					if !ok {
						audioCh = nil
						continue
					}
					streamedAny = true
					if !srDetected {
						if sr := audio.SampleRateFromWAV(chunk); sr > 0 {
							detectedSR = sr
						}
						srDetected = true
					}
					if stripped, isHeader := audio.StripEmptyWAVHeaderPrefix(chunk); isHeader {
						chunk = stripped
					}
					pendingAudio = append(pendingAudio, chunk...)
					if len(pendingAudio) >= emitSize {
						wav, next := audio.ToPlayableWAVChunk(pendingAudio, detectedSR, 1, pcmCarry)
						pcmCarry = next
						pendingAudio = pendingAudio[:0]
						emitSize = 65536
						markFirstAudio()
						ttsMu.Lock()
						audioChunksSent++
						ttsMu.Unlock()
						emit("tts.audio_chunk", map[string]any{
							"seq":      job.seq,
							"is_final": false,
							"data": map[string]any{
								"chunk":       audio.EncodeBase64(wav),
								"sample_rate": detectedSR,
							},
						})
					}
				case synthErr, ok := <-errCh:
					if !ok {
						errCh = nil
						continue
					}
					if synthErr != nil {
						log.Error("tts stream error", "error", synthErr, "seq", job.seq)
					}
					errCh = nil
				}
			}

			if len(pendingAudio) > 0 {
				wav, next := audio.ToPlayableWAVChunk(pendingAudio, detectedSR, 1, pcmCarry)
				pcmCarry = next
				markFirstAudio()
				ttsMu.Lock()
				audioChunksSent++
				ttsMu.Unlock()
				emit("tts.audio_chunk", map[string]any{
					"seq":      job.seq,
					"is_final": job.isFinal,
					"data": map[string]any{
						"chunk":       audio.EncodeBase64(wav),
						"sample_rate": detectedSR,
					},
				})
			}

			if !streamedAny && !sess.IsCancelled() {
				result, err := ttsClient.Synthesize(ctx, cleaned, cfg.TTSVoiceID)
				if err != nil {
					log.Error("tts synthesize fallback failed", "error", err, "seq", job.seq)
				} else {
					emit("tts.audio", map[string]any{
						"seq":      job.seq,
						"text":     cleaned,
						"audio":    audio.EncodeBase64(result.Audio),
						"is_final": job.isFinal,
					})
					sess.Metrics.RecordTTSLatency(time.Duration(result.LatencyMs) * time.Millisecond)
				}
			} else {
				sess.Metrics.RecordTTSLatency(time.Since(start))
			}

			ttsMu.Lock()
			segmentCount++
			ttsMu.Unlock()
		}
	}

	// Exactly one consumer: spec.md's ordering guarantee ("TTS segments
	// are produced in strictly increasing seq, handed to a
	// single-consumer worker, and sent to the client in the same
	// order") only holds if one goroutine drains jobs — a pool would
	// let two segments synthesize and emit concurrently, scrambling seq
	// order on the wire.
	workerWG.Add(1)
	go worker()

	chunks := chunker.New(cfg.ChunkerMinSize, cfg.ChunkerMaxSize)
	var fullResponse strings.Builder
	var emotionPrefixBuf strings.Builder
	emotionResolved := false
	emotionEverSet := false
	chunkCount := 0
	llmStart := time.Now()
	var firstTokenAt time.Time
	firstTokenOnce := sync.Once{}

	enqueue := func(seq int, text string, isFinal bool) {
		if text == "" && !isFinal {
			return
		}
		select {
		case jobs <- ttsJob{seq: seq, text: text, isFinal: isFinal}:
		case <-sess.CancelSignal():
		}
	}

	sess.Metrics.StartMeasure("ttfb")
	result, err := cfg.LLM.Chat(ctx, fullPrompt, ragContext, systemPrompt, cfg.LLMModel, cfg.LLMEngine, func(token string) {
		if sess.IsCancelled() {
			return
		}
		firstTokenOnce.Do(func() { firstTokenAt = time.Now() })

		chunkText := token
		if !emotionResolved {
			emotionPrefixBuf.WriteString(token)
			chunkCount++
			state, tagEmotion, resolvedOrRaw := emotion.ResolveLeadingPrefix(emotionPrefixBuf.String(), chunkCount)
			switch state {
			case emotion.StateNeedMore:
				return
			case emotion.StateResolved:
				emotionResolved = true
				chunkText = resolvedOrRaw
				if tagEmotion != "" {
					emotionEverSet = true
					sendAvatarState(tagEmotion, "llm_tag")
				}
			case emotion.StateNoTag:
				emotionResolved = true
				chunkText = resolvedOrRaw
			}
		}

		fullResponse.WriteString(chunkText)
		if !emotionEverSet && fullResponse.Len() > 0 {
			emotionEverSet = true
			sendAvatarState(emotion.Infer(fullResponse.String(), "neutral"), "heuristic")
		} else if emotionEverSet && len(chunkText) > 0 {
			if fullResponse.Len()%60 < len(chunkText) {
				sendAvatarState(emotion.Infer(fullResponse.String(), "neutral"), "heuristic_update")
			}
		}

		for _, c := range chunks.Add(chunkText) {
			enqueue(c.Seq, c.Text, c.Final)
		}
	})
	sess.Metrics.EndMeasureTTFB("ttfb")

	if err != nil && !sess.IsCancelled() {
		log.Error("llm generate failed", "error", err)
		close(jobs)
		workerWG.Wait()
		cfg.Tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), in.Text, "", "error")
		return fmt.Errorf("llm generate: %w", err)
	}

	if last, ok := chunks.Flush(); ok {
		enqueue(last.Seq, last.Text, last.Final)
	}
	if !sess.IsCancelled() && !emotionEverSet {
		text := fullResponse.String()
		if text == "" && result != nil {
			text = result.Text
		}
		sendAvatarState(emotion.Infer(text, "neutral"), "fallback")
	}

	close(jobs)
	workerWG.Wait()
	classifyWG.Wait()
	if classifyResult != nil {
		log.Debug("audio emotion classification", "label", classifyResult.Label, "confidence", classifyResult.Confidence)
	}

	if sess.IsCancelled() {
		sess.State.TransitionTo(session.StateInterrupted)
		sess.Metrics.IncrementInterruptCount()
		cfg.Tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), in.Text, fullResponse.String(), "cancelled")
		return nil
	}

	responseText := fullResponse.String()
	sess.AppendHistory("assistant", responseText)
	sess.State.TransitionTo(session.StateListening)
	emit("state.update", map[string]any{"state": "listening"})

	if cfg.CallHistory != nil {
		cfg.CallHistory.StoreAsync(context.Background(), sess.ID, in.Text, responseText)
	}

	var wer float64
	if in.ReferenceText != "" {
		wer = ComputeWER(in.ReferenceText, in.Text)
		metrics.ASRWEREstimate.Set(wer)
	}

	var firstTokenMs, firstAudioMs float64
	if !firstTokenAt.IsZero() {
		firstTokenMs = float64(firstTokenAt.Sub(llmStart).Milliseconds())
	}
	if !firstTTSAudioAt.IsZero() {
		firstAudioMs = float64(firstTTSAudioAt.Sub(llmStart).Milliseconds())
	}
	log.Info("turn complete",
		"asr_final_ms", in.ASRFinalMs,
		"first_llm_token_ms", firstTokenMs,
		"first_tts_audio_ms", firstAudioMs,
		"tts_audio_chunks_sent", audioChunksSent,
		"tts_segment_count", segmentCount,
		"prethink_hit", prethinkHit,
		"prethink_age_ms", prethinkAge.Milliseconds(),
		"prethink_source_turn_id", prethinkSourceTurn,
		"wer", wer,
		"total_ms", time.Since(turnStart).Milliseconds(),
	)

	cfg.Tracer.EndRun(runID, float64(time.Since(turnStart).Milliseconds()), in.Text, responseText, "ok")

	if cfg.Prethink != nil {
		cfg.Prethink.Spawn(context.Background(), sess, cfg.PrethinkConfig, cfg.PrethinkFallbackModel, turnID)
	}

	return nil
}
