package asr

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hubenschmidt/voice-call-gateway/internal/sherpaonnx"
)

// ModelKind selects which sherpa-onnx online model family to load.
type ModelKind string

const (
	ModelKindTransducer    ModelKind = "transducer"
	ModelKindZipformer2CTC ModelKind = "zipformer2_ctc"
)

// ModelConfig describes one sherpa-onnx streaming model on disk.
// Grounded on asr_adapter.py's SherpaASR constructor config keys.
type ModelConfig struct {
	ModelKind   ModelKind
	TokensPath  string
	ModelPath   string // zipformer2_ctc
	EncoderPath string // transducer
	DecoderPath string // transducer
	JoinerPath  string // transducer
	NumThreads  int
	Provider    string
	SampleRate  int
}

func (c ModelConfig) key() string {
	switch c.ModelKind {
	case ModelKindZipformer2CTC:
		return strings.Join([]string{
			string(c.ModelKind), abs(c.TokensPath), abs(c.ModelPath),
			fmt.Sprint(c.NumThreads), c.Provider, fmt.Sprint(c.SampleRate),
		}, "|")
	default:
		return strings.Join([]string{
			string(ModelKindTransducer), abs(c.TokensPath), abs(c.EncoderPath),
			abs(c.DecoderPath), abs(c.JoinerPath),
			fmt.Sprint(c.NumThreads), c.Provider, fmt.Sprint(c.SampleRate),
		}, "|")
	}
}

func abs(p string) string {
	if p == "" {
		return ""
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

var (
	sharedRecognizersMu sync.Mutex
	sharedRecognizers   = map[string]*sherpaonnx.OnlineRecognizer{}
)

// getOrCreateSharedRecognizer loads (or reuses) a process-wide cached
// recognizer for cfg, mirroring SherpaASR._get_or_create_shared_recognizer.
func getOrCreateSharedRecognizer(cfg ModelConfig) (*sherpaonnx.OnlineRecognizer, error) {
	key := cfg.key()

	sharedRecognizersMu.Lock()
	defer sharedRecognizersMu.Unlock()

	if r, ok := sharedRecognizers[key]; ok {
		return r, nil
	}

	rc := sherpaonnx.OnlineRecognizerConfig{}
	rc.ModelConfig.Tokens = cfg.TokensPath
	rc.ModelConfig.NumThreads = cfg.NumThreads
	rc.ModelConfig.Provider = cfg.Provider
	rc.FeatConfig.SampleRate = cfg.SampleRate
	rc.FeatConfig.FeatureDim = 80
	rc.DecodingMethod = "greedy_search"

	switch cfg.ModelKind {
	case ModelKindZipformer2CTC:
		rc.ModelConfig.Zipformer2Ctc.Model = cfg.ModelPath
		log.Printf("[asr] loading zipformer2_ctc model from %s", cfg.ModelPath)
	default:
		rc.ModelConfig.Transducer.Encoder = cfg.EncoderPath
		rc.ModelConfig.Transducer.Decoder = cfg.DecoderPath
		rc.ModelConfig.Transducer.Joiner = cfg.JoinerPath
		log.Printf("[asr] loading transducer model from %s", cfg.EncoderPath)
	}

	recognizer := sherpaonnx.NewOnlineRecognizer(&rc)
	if recognizer == nil {
		return nil, fmt.Errorf("asr: failed to load sherpa-onnx model (kind=%s)", cfg.ModelKind)
	}
	sharedRecognizers[key] = recognizer
	log.Printf("[asr] shared recognizer ready for key=%s", key)
	return recognizer, nil
}

// LocalStreamingClient is a streaming ASR adapter over a shared
// sherpa-onnx OnlineRecognizer. Grounded on asr_adapter.py's SherpaASR,
// including its stale-stream-handle recovery behavior.
type LocalStreamingClient struct {
	recognizer *sherpaonnx.OnlineRecognizer
	stream     *sherpaonnx.OnlineStream
	sampleRate int
	// lastPartial is the text Partial last returned, so an unchanged
	// hypothesis yields "".
	lastPartial string
}

// NewLocalStreamingClient loads (or reuses) the shared model described by
// cfg and returns a per-session client bound to it.
func NewLocalStreamingClient(cfg ModelConfig) (*LocalStreamingClient, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}
	if cfg.Provider == "" {
		cfg.Provider = "cpu"
	}

	recognizer, err := getOrCreateSharedRecognizer(cfg)
	if err != nil {
		return nil, err
	}
	return &LocalStreamingClient{recognizer: recognizer, sampleRate: cfg.SampleRate}, nil
}

func (c *LocalStreamingClient) Start(ctx context.Context) error {
	c.stream = c.recognizer.CreateStream()
	c.lastPartial = ""
	return nil
}

func (c *LocalStreamingClient) PushAudio(ctx context.Context, pcm16 []byte) (err error) {
	if c.stream == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[asr] decode panic, recovering stream: %v", r)
			c.recoverStream()
		}
	}()

	samples := pcm16ToFloat32(pcm16)
	c.stream.AcceptWaveform(c.sampleRate, samples)
	for c.recognizer.IsReady(c.stream) {
		c.recognizer.Decode(c.stream)
	}
	return nil
}

func (c *LocalStreamingClient) recoverStream() {
	c.stream = c.recognizer.CreateStream()
}

func (c *LocalStreamingClient) Partial(ctx context.Context) (string, error) {
	text := c.safeResult()
	if text == c.lastPartial {
		return "", nil
	}
	c.lastPartial = text
	return text, nil
}

func (c *LocalStreamingClient) OnSpeechEnd(ctx context.Context) (err error) {
	if c.stream == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[asr] speech-end flush panic: %v", r)
		}
	}()
	c.stream.InputFinished()
	for c.recognizer.IsReady(c.stream) {
		c.recognizer.Decode(c.stream)
	}
	return nil
}

func (c *LocalStreamingClient) Final(ctx context.Context) (string, error) {
	result := c.safeResult()
	if result == "" {
		return "", nil
	}
	return result, nil
}

func (c *LocalStreamingClient) Stop(ctx context.Context) error {
	if c.stream != nil {
		sherpaonnx.DeleteOnlineStream(c.stream)
		c.stream = nil
	}
	return nil
}

func (c *LocalStreamingClient) safeResult() (text string) {
	if c.stream == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			// sherpa-onnx can panic when the stream handle is stale.
			log.Printf("[asr] get_result invalid stream handle: %v", r)
			c.recoverStream()
			text = ""
		}
	}()
	return c.recognizer.GetResult(c.stream).Text
}

func pcm16ToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

var _ Client = (*LocalStreamingClient)(nil)
