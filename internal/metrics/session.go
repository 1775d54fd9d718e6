package metrics

import (
	"sync"
	"time"
)

// SessionRecorder is an in-process per-session latency/event accumulator,
// mirroring original_source/utils/metrics.py's MetricsCollector. It is
// the per-call complement to the process-wide Prometheus series declared
// in metrics.go.
type SessionRecorder struct {
	mu sync.Mutex

	sessionID        string
	startedAt        time.Time
	ttfbMs           float64
	ttfaMs           float64
	asrLatenciesMs   []float64
	ttsLatenciesMs   []float64
	interruptCount   int
	actionStartTimes map[string]time.Time
}

// NewSessionRecorder creates a recorder for sessionID, started now.
func NewSessionRecorder(sessionID string) *SessionRecorder {
	return &SessionRecorder{
		sessionID:        sessionID,
		startedAt:        time.Now(),
		actionStartTimes: make(map[string]time.Time),
	}
}

// StartMeasure marks the start of a named timed action.
func (r *SessionRecorder) StartMeasure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionStartTimes[key] = time.Now()
}

// EndMeasureTTFB ends a "key" measurement and records it as
// time-to-first-byte (LLM).
func (r *SessionRecorder) EndMeasureTTFB(key string) {
	r.endInto(key, &r.ttfbMs)
}

// EndMeasureTTFA ends a "key" measurement and records it as
// time-to-first-audio (TTS).
func (r *SessionRecorder) EndMeasureTTFA(key string) {
	r.endInto(key, &r.ttfaMs)
}

func (r *SessionRecorder) endInto(key string, target *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.actionStartTimes[key]
	if !ok {
		return
	}
	*target = float64(time.Since(start).Milliseconds())
	delete(r.actionStartTimes, key)
}

// RecordASRLatency appends one per-utterance ASR latency sample.
func (r *SessionRecorder) RecordASRLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asrLatenciesMs = append(r.asrLatenciesMs, float64(d.Milliseconds()))
}

// RecordTTSLatency appends one per-chunk TTS generation latency sample.
func (r *SessionRecorder) RecordTTSLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttsLatenciesMs = append(r.ttsLatenciesMs, float64(d.Milliseconds()))
}

// IncrementInterruptCount bumps the barge-in counter.
func (r *SessionRecorder) IncrementInterruptCount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interruptCount++
}

// Snapshot is the finalized, read-only view of a session's metrics.
type Snapshot struct {
	SessionID         string
	TTFBMs            float64
	TTFAMs            float64
	ASRLatenciesMs    []float64
	TTSLatenciesMs    []float64
	InterruptCount    int
	SessionDurationS  float64
}

// Finalize returns a snapshot of accumulated metrics as of now.
func (r *SessionRecorder) Finalize() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		SessionID:        r.sessionID,
		TTFBMs:           r.ttfbMs,
		TTFAMs:           r.ttfaMs,
		ASRLatenciesMs:   append([]float64{}, r.asrLatenciesMs...),
		TTSLatenciesMs:   append([]float64{}, r.ttsLatenciesMs...),
		InterruptCount:   r.interruptCount,
		SessionDurationS: time.Since(r.startedAt).Seconds(),
	}
}
