package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/voice-call-gateway/internal/asr"
	"github.com/hubenschmidt/voice-call-gateway/internal/env"
	"github.com/hubenschmidt/voice-call-gateway/internal/httpx"
	"github.com/hubenschmidt/voice-call-gateway/internal/llm"
	"github.com/hubenschmidt/voice-call-gateway/internal/models"
	"github.com/hubenschmidt/voice-call-gateway/internal/orchestrator"
	"github.com/hubenschmidt/voice-call-gateway/internal/pipeline"
	"github.com/hubenschmidt/voice-call-gateway/internal/prethink"
	"github.com/hubenschmidt/voice-call-gateway/internal/prompt"
	"github.com/hubenschmidt/voice-call-gateway/internal/session"
	"github.com/hubenschmidt/voice-call-gateway/internal/trace"
	"github.com/hubenschmidt/voice-call-gateway/internal/tts"
	"github.com/hubenschmidt/voice-call-gateway/internal/vad"
	"github.com/hubenschmidt/voice-call-gateway/internal/ws"
)

// tuning holds knobs loaded from gateway.json. These are values that may
// eventually move to a database; for now a JSON file keeps them out of env
// vars, matching the split between deployment config (env) and call-tuning
// config (this file) that the rest of the repository follows.
type tuning struct {
	LLMSystemPrompt string `json:"llm_system_prompt"`
	LLMMaxTokens    int    `json:"llm_max_tokens"`
	LLMEngine       string `json:"llm_engine"`
	LLMModel        string `json:"llm_model"`

	ASREngine       string `json:"asr_engine"`
	ASRFinalDelayMs int    `json:"asr_final_delay_ms"`
	TTSEngine       string `json:"tts_engine"`
	TTSVoiceID      string `json:"tts_voice_id"`

	ASRPoolSize int `json:"asr_pool_size"`
	LLMPoolSize int `json:"llm_pool_size"`
	TTSPoolSize int `json:"tts_pool_size"`

	VADMode          string `json:"vad_mode"`
	VADSpeechStartMs int    `json:"vad_speech_start_ms"`
	VADSpeechEndMs   int    `json:"vad_speech_end_ms"`
	VADEnergyThresh  int    `json:"vad_energy_threshold"`

	HistoryWindowMessages int `json:"history_window_messages"`
	ChunkerMinSize        int `json:"chunker_min_size"`
	ChunkerMaxSize        int `json:"chunker_max_size"`
	TTSQueueCapacity      int `json:"tts_queue_capacity"`
	OutputSampleRate      int `json:"output_sample_rate"`

	PrethinkEnabled bool `json:"prethink_enabled"`

	PlaybackStartupBufferMs  int `json:"playback_startup_buffer_ms"`
	PlaybackStartupMaxWaitMs int `json:"playback_startup_max_wait_ms"`
	PlaybackScheduleLeadMs   int `json:"playback_schedule_lead_ms"`

	OpenAIURL      string `json:"openai_url"`
	OpenAIModel    string `json:"openai_model"`
	AnthropicURL   string `json:"anthropic_url"`
	AnthropicModel string `json:"anthropic_model"`

	RAGTopK           int     `json:"rag_top_k"`
	RAGScoreThreshold float64 `json:"rag_score_threshold"`
}

// defaultTuning returns sensible defaults matching gateway.json.
func defaultTuning() tuning {
	return tuning{
		LLMSystemPrompt: prompt.DefaultSystem,
		LLMMaxTokens:    2048,
		LLMEngine:       "ollama",
		LLMModel:        "replyer",

		ASREngine:       "mock",
		ASRFinalDelayMs: ws.DefaultASRFinalDelayMs,
		TTSEngine:       "mock",
		TTSVoiceID:      "default",

		ASRPoolSize: 50,
		LLMPoolSize: 50,
		TTSPoolSize: 50,

		VADMode:          "energy",
		VADSpeechStartMs: 150,
		VADSpeechEndMs:   400,
		VADEnergyThresh:  500,

		HistoryWindowMessages: 12,
		ChunkerMinSize:        10,
		ChunkerMaxSize:        50,
		TTSQueueCapacity:      32,
		OutputSampleRate:      24000,

		PrethinkEnabled: true,

		PlaybackStartupBufferMs:  120,
		PlaybackStartupMaxWaitMs: 120,
		PlaybackScheduleLeadMs:   30,

		OpenAIURL:      "https://api.openai.com",
		OpenAIModel:    "gpt-4.1-nano",
		AnthropicURL:   "https://api.anthropic.com",
		AnthropicModel: "claude-sonnet-4-5",

		RAGTopK:           3,
		RAGScoreThreshold: 0.7,
	}
}

// loadTuning reads gateway.json if present, otherwise returns defaults.
func loadTuning(path string) tuning {
	t := defaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no config file, using defaults", "path", path)
		return t
	}
	if err = json.Unmarshal(data, &t); err != nil {
		slog.Warn("bad config file, using defaults", "path", path, "error", err)
		return defaultTuning()
	}
	slog.Info("loaded config", "path", path)
	return t
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	t := loadTuning("gateway.json")

	// Deployment env vars — URLs, ports, keys.
	port := env.Str("GATEWAY_PORT", "8000")
	ollamaURL := env.Str("OLLAMA_URL", "http://localhost:11434")
	ollamaModel := env.Str("OLLAMA_MODEL", "llama3.2:3b")
	openaiAPIKey := env.Str("OPENAI_API_KEY", "")
	anthropicAPIKey := env.Str("ANTHROPIC_API_KEY", "")

	whisperServerURL := env.Str("WHISPER_SERVER_URL", "")
	whisperControlURL := env.Str("WHISPER_CONTROL_URL", "")
	sherpaTokensPath := env.Str("SHERPA_TOKENS_PATH", "")
	sherpaModelPath := env.Str("SHERPA_MODEL_PATH", "")
	sileroModelPath := env.Str("SILERO_VAD_MODEL_PATH", "")

	piperURL := env.Str("PIPER_URL", "")
	volcWSURL := env.Str("VOLC_TTS_WS_URL", "")
	volcAppKey := env.Str("VOLC_TTS_APP_KEY", "")
	volcAccessKey := env.Str("VOLC_TTS_ACCESS_KEY", "")
	volcResourceID := env.Str("VOLC_TTS_RESOURCE_ID", "")
	volcVoiceType := env.Str("VOLC_TTS_VOICE_TYPE", "")

	qdrantURL := env.Str("QDRANT_URL", "")
	embeddingModel := env.Str("EMBEDDING_MODEL", "nomic-embed-text")
	knowledgeCollection := env.Str("KNOWLEDGE_COLLECTION", "knowledge_base")
	callHistoryCollection := env.Str("CALL_HISTORY_COLLECTION", "call_history")
	audioClassifyURL := env.Str("AUDIOCLASSIFY_URL", "")
	noiseReduceURL := env.Str("NOISEREDUCE_URL", "")
	postgresURL := env.Str("POSTGRES_URL", "")

	// Service orchestrator for ASR/TTS sidecar process lifecycle.
	svcRegistry := orchestrator.NewRegistry(map[string]orchestrator.ServiceMeta{
		"whisper-server": {
			Category:   "stt",
			HealthURL:  whisperServerURL,
			ControlURL: whisperControlURL,
		},
	})
	svcMgr := orchestrator.NewHTTPControlManager(svcRegistry)

	asrRouter := initASR(t, whisperServerURL, sherpaTokensPath, sherpaModelPath)
	llmRouter := initLLM(t, ollamaURL, ollamaModel, openaiAPIKey, anthropicAPIKey)
	ttsRouter := initTTS(t, piperURL, volcWSURL, volcAppKey, volcAccessKey, volcResourceID, volcVoiceType)

	var sileroEngine *vad.SileroEngine
	if sileroModelPath != "" {
		var sileroErr error
		sileroEngine, sileroErr = vad.NewSileroEngine(sileroModelPath, asr.SampleRate)
		if sileroErr != nil {
			slog.Warn("silero vad model load failed, falling back to energy vad", "error", sileroErr)
		}
	}
	vadCfg := vad.DefaultConfig()
	vadCfg.Mode = vad.Mode(t.VADMode)
	vadCfg.SpeechStartMs = t.VADSpeechStartMs
	vadCfg.SpeechEndMs = t.VADSpeechEndMs
	vadCfg.EnergyThreshold = t.VADEnergyThresh

	var ragClient *pipeline.RAGClient
	var callHistoryClient *pipeline.CallHistoryClient
	if qdrantURL != "" {
		embedder := pipeline.NewEmbeddingClient(ollamaURL, embeddingModel, 8)
		qdrant := pipeline.NewQdrantClient(qdrantURL, 8)
		ragClient = pipeline.NewRAGClient(pipeline.RAGConfig{
			Embedder:       embedder,
			Qdrant:         qdrant,
			Collection:     knowledgeCollection,
			TopK:           t.RAGTopK,
			ScoreThreshold: t.RAGScoreThreshold,
		})
		callHistoryClient = pipeline.NewCallHistoryClient(embedder, qdrant, callHistoryCollection)
	}

	var classifyClient *pipeline.ClassifyClient
	if audioClassifyURL != "" {
		classifyClient = pipeline.NewClassifyClient(audioClassifyURL)
	}

	var noiseClient *pipeline.NoiseClient
	if noiseReduceURL != "" {
		noiseClient = pipeline.NewNoiseClient(noiseReduceURL)
	}

	var traceStore *trace.Store
	if postgresURL != "" {
		var traceErr error
		traceStore, traceErr = trace.Open(postgresURL)
		if traceErr != nil {
			slog.Error("trace store open failed", "error", traceErr)
		} else {
			slog.Info("tracing enabled", "postgres", postgresURL)
		}
	}

	prethinkClient, err := llmRouter.Route(t.LLMEngine)
	if err != nil {
		slog.Error("prethink llm backend unavailable", "engine", t.LLMEngine, "error", err)
	}
	prethinkEngine := prethink.NewEngine(prethinkClient, slog.Default())
	prethinkCfg := prethink.DefaultConfig
	prethinkCfg.Enabled = t.PrethinkEnabled

	systemPrompt := t.LLMSystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompt.DefaultSystem
	}

	orch := pipeline.New(pipeline.Config{
		LLM:       llmRouter,
		LLMEngine: t.LLMEngine,
		LLMModel:  t.LLMModel,

		TTS:        ttsRouter,
		TTSEngine:  t.TTSEngine,
		TTSVoiceID: t.TTSVoiceID,

		Prethink:              prethinkEngine,
		PrethinkConfig:        prethinkCfg,
		PrethinkFallbackModel: t.LLMModel,

		SystemPrompt:          systemPrompt,
		HistoryWindowMessages: t.HistoryWindowMessages,
		ChunkerMinSize:        t.ChunkerMinSize,
		ChunkerMaxSize:        t.ChunkerMaxSize,
		TTSQueueCapacity:      t.TTSQueueCapacity,
		OutputSampleRate:      t.OutputSampleRate,

		RAG:         ragClient,
		CallHistory: callHistoryClient,
		Classify:    classifyClient,

		Log: slog.Default(),
	})

	sessions := session.NewManager()

	handler := ws.NewHandler(ws.HandlerConfig{
		Sessions:        sessions,
		ASR:             asrRouter,
		ASREngine:       t.ASREngine,
		ASRFinalDelayMs: t.ASRFinalDelayMs,
		Orchestrator:    orch,
		VAD:             vadCfg,
		VADSilero:       sileroEngine,
		Noise:           noiseClient,
		TraceStore:      traceStore,
		Playback: ws.PlaybackConfig{
			StartupBufferMs:  t.PlaybackStartupBufferMs,
			StartupMaxWaitMs: t.PlaybackStartupMaxWaitMs,
			ScheduleLeadMs:   t.PlaybackScheduleLeadMs,
		},
	})

	gpu := newGPUHub(ollamaURL, whisperControlURL)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		ollamaURL:         ollamaURL,
		ollamaModel:       ollamaModel,
		whisperControlURL: whisperControlURL,
		asrRouter:         asrRouter,
		llmRouter:         llmRouter,
		ttsClient:         ttsRouter,
		svcMgr:            svcMgr,
		gpu:               gpu,
		wsHandler:         handler,
		traceStore:        traceStore,
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv, ollamaURL, svcMgr)

	slog.Info("gateway starting", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then gracefully unloads models and stops services.
func awaitShutdown(srv *http.Server, ollamaURL string, svcMgr *orchestrator.HTTPControlManager) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("unloading ollama models")
	if err := models.UnloadAllLLMs(ctx, ollamaURL); err != nil {
		slog.Warn("ollama unload", "error", err)
	}

	slog.Info("stopping ML services")
	stopRunningServices(ctx, svcMgr, "shutdown")

	srv.Shutdown(ctx)
}

func initASR(t tuning, whisperServerURL, sherpaTokensPath, sherpaModelPath string) *asr.Router {
	factories := map[string]asr.Factory{
		"mock": func() (asr.Client, error) { return asr.NewMockClient(""), nil },
	}
	if whisperServerURL != "" {
		factories["http_batch"] = func() (asr.Client, error) {
			return asr.NewHTTPBatchClient(whisperServerURL, httpx.NewPooledClient(t.ASRPoolSize, 30*time.Second)), nil
		}
	}
	if sherpaTokensPath != "" && sherpaModelPath != "" {
		factories["sherpa_local"] = func() (asr.Client, error) {
			return asr.NewLocalStreamingClient(asr.ModelConfig{
				ModelKind:  asr.ModelKindZipformer2CTC,
				TokensPath: sherpaTokensPath,
				ModelPath:  sherpaModelPath,
				NumThreads: 2,
				Provider:   "cpu",
				SampleRate: asr.SampleRate,
			})
		}
	}
	return asr.NewRouter(t.ASREngine, factories)
}

func initLLM(t tuning, ollamaURL, ollamaModel, openaiAPIKey, anthropicAPIKey string) *llm.Router {
	backends := map[string]llm.ChatClient{
		"ollama": llm.NewOllamaClient(ollamaURL, ollamaModel, t.LLMSystemPrompt, t.LLMMaxTokens, t.LLMPoolSize),
		"mock":   llm.NewMockClient("ok"),
	}
	modelOrder := []string{ollamaModel, "ok"}
	if openaiAPIKey != "" {
		backends["openai"] = llm.NewOpenAICompletionsClient(openaiAPIKey, t.OpenAIURL, t.OpenAIModel, t.LLMMaxTokens, t.LLMPoolSize)
		modelOrder = append(modelOrder, t.OpenAIModel)
	}
	if anthropicAPIKey != "" {
		backends["anthropic"] = llm.NewAnthropicClient(anthropicAPIKey, t.AnthropicURL, t.AnthropicModel, t.LLMMaxTokens, t.LLMPoolSize)
		modelOrder = append(modelOrder, t.AnthropicModel)
	}
	models := make(map[string]string, len(modelOrder))
	for _, name := range modelOrder {
		models[name] = name
	}
	return llm.NewRouter(backends, "ollama", models, modelOrder)
}

func initTTS(t tuning, piperURL, volcWSURL, volcAppKey, volcAccessKey, volcResourceID, volcVoiceType string) *tts.Router {
	factories := map[string]tts.Factory{
		"mock": func() (tts.Client, error) { return tts.NewMockClient(), nil },
	}
	if piperURL != "" {
		factories["http_batch"] = func() (tts.Client, error) {
			return tts.NewHTTPClient(tts.HTTPClientConfig{
				Style:           tts.StyleJSONPost,
				BaseURL:         piperURL,
				Path:            "/synthesize",
				DefaultVoiceKey: t.TTSVoiceID,
			}, httpx.NewPooledClient(t.TTSPoolSize, 30*time.Second)), nil
		}
	}
	if volcWSURL != "" {
		factories["ws_bidirectional"] = func() (tts.Client, error) {
			return tts.NewVolcStreamClient(tts.VolcStreamConfig{
				WSURL:      volcWSURL,
				AppKey:     volcAppKey,
				AccessKey:  volcAccessKey,
				ResourceID: volcResourceID,
				VoiceType:  volcVoiceType,
			})
		}
	}
	return tts.NewRouter(t.TTSEngine, factories)
}
