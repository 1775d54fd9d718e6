package vad

import "testing"

func loudFrame(n int) []byte {
	frame := make([]byte, n*2)
	for i := 0; i < n; i++ {
		// 16000 amplitude square wave, well above the default energy threshold.
		v := int16(16000)
		if i%2 == 0 {
			v = -v
		}
		frame[2*i] = byte(uint16(v))
		frame[2*i+1] = byte(uint16(v) >> 8)
	}
	return frame
}

func silentFrame(n int) []byte {
	return make([]byte, n*2)
}

func TestClassifierEnergyFallback(t *testing.T) {
	cfg := DefaultConfig()
	c := NewClassifier(cfg, nil, nil)

	if !c.IsSpeech(loudFrame(320), 20) {
		t.Fatal("expected loud frame to classify as speech")
	}
	if c.IsSpeech(silentFrame(320), 20) {
		t.Fatal("expected silent frame to classify as silence")
	}
}

func TestClassifierWebRTCModeFallsBackWithoutEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeWebRTC
	c := NewClassifier(cfg, nil, nil)

	if !c.IsSpeech(loudFrame(320), 20) {
		t.Fatal("expected energy fallback to detect loud frame as speech")
	}
}

func TestStateMachineStartEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeechStartMs = 40
	cfg.SpeechEndMs = 60
	cfg.MinUtteranceMs = 20
	sm := NewStateMachine(cfg)

	if ev := sm.Update(true, 20); ev != EventNone {
		t.Fatalf("expected no event yet, got %v", ev)
	}
	if ev := sm.Update(true, 20); ev != EventStart {
		t.Fatalf("expected start event, got %v", ev)
	}
	if !sm.Active() {
		t.Fatal("expected state machine to be active after start")
	}

	if ev := sm.Update(false, 20); ev != EventNone {
		t.Fatalf("expected no event on first silence frame, got %v", ev)
	}
	if ev := sm.Update(false, 20); ev != EventNone {
		t.Fatalf("expected no event before speech_end_ms elapses, got %v", ev)
	}
	if ev := sm.Update(false, 20); ev != EventEnd {
		t.Fatalf("expected end event once silence reaches speech_end_ms, got %v", ev)
	}
	if sm.Active() {
		t.Fatal("expected state machine to be inactive after end")
	}
}

func TestStateMachineShortUtteranceSuppressesEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeechStartMs = 20
	cfg.SpeechEndMs = 40
	cfg.MinUtteranceMs = 1000
	sm := NewStateMachine(cfg)

	if ev := sm.Update(true, 20); ev != EventStart {
		t.Fatalf("expected start event, got %v", ev)
	}
	sm.Update(false, 20)
	if ev := sm.Update(false, 20); ev != EventNone {
		t.Fatalf("expected no end event for too-short utterance, got %v", ev)
	}
	if sm.Active() {
		t.Fatal("expected reset to inactive even without emitting end")
	}
}

func TestStateMachinePreStartHangover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpeechStartMs = 100
	cfg.PreStartSilenceToleranceMs = 30
	sm := NewStateMachine(cfg)

	sm.Update(true, 20) // speechDurationMs=20, below threshold
	sm.Update(false, 20) // hangover: silenceDurationMs=20, within tolerance
	if sm.speechDurationMs == 0 {
		t.Fatal("expected accumulated speech duration to survive short hangover")
	}
	sm.Update(false, 20) // silenceDurationMs now 40 > tolerance of 30
	if sm.speechDurationMs != 0 {
		t.Fatal("expected accumulated speech duration to reset after tolerance exceeded")
	}
}

func TestPreRollDrainOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PreRollMs = 40
	p := NewPreRoll(cfg, 20)

	p.Push([]byte{1})
	p.Push([]byte{2})
	p.Push([]byte{3})

	got := p.Drain()
	if len(got) == 0 {
		t.Fatal("expected drained frames")
	}
	if got[len(got)-1][0] != 3 {
		t.Fatalf("expected most recent frame last, got %v", got)
	}
	if len(p.Drain()) != 0 {
		t.Fatal("expected buffer empty after drain")
	}
}
