package tts

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Settings is the runtime configuration of the pipeline. A Service holds an
// immutable snapshot and replaces it wholesale on UpdateSettings.
type Settings struct {
	// General
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled" env:"ENABLED"`
	VolumeDB     float64 `yaml:"volume_db" mapstructure:"volume_db" env:"VOLUME_DB"`
	MaxQueueSize int     `yaml:"max_queue_size" mapstructure:"max_queue_size" env:"MAX_QUEUE_SIZE"`

	// Inference server
	ServerURL      string        `yaml:"server_url" mapstructure:"server_url" env:"SERVER_URL"`
	SSLVerify      bool          `yaml:"ssl_verify" mapstructure:"ssl_verify" env:"SSL_VERIFY"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" env:"REQUEST_TIMEOUT"`

	// Voice
	SovitsModel  string `yaml:"sovits_model" mapstructure:"sovits_model" env:"SOVITS_MODEL"`
	GPTModel     string `yaml:"gpt_model" mapstructure:"gpt_model" env:"GPT_MODEL"`
	TextLang     string `yaml:"text_lang" mapstructure:"text_lang" env:"TEXT_LANG"`
	RefAudioPath string `yaml:"ref_audio_path" mapstructure:"ref_audio_path" env:"REF_AUDIO_PATH"`
	RefTextPath  string `yaml:"ref_text_path" mapstructure:"ref_text_path" env:"REF_TEXT_PATH"`

	// Inference parameters, passed through to the server
	TopK              int     `yaml:"top_k" mapstructure:"top_k" env:"TOP_K"`
	TopP              float64 `yaml:"top_p" mapstructure:"top_p" env:"TOP_P"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature" env:"TEMPERATURE"`
	TextSplitMethod   string  `yaml:"text_split_method" mapstructure:"text_split_method" env:"TEXT_SPLIT_METHOD"`
	BatchSize         int     `yaml:"batch_size" mapstructure:"batch_size" env:"BATCH_SIZE"`
	SpeedFactor       float64 `yaml:"speed_factor" mapstructure:"speed_factor" env:"SPEED_FACTOR"`
	RefTextFree       bool    `yaml:"ref_text_free" mapstructure:"ref_text_free" env:"REF_TEXT_FREE"`
	SplitBucket       bool    `yaml:"split_bucket" mapstructure:"split_bucket" env:"SPLIT_BUCKET"`
	FragmentInterval  float64 `yaml:"fragment_interval" mapstructure:"fragment_interval" env:"FRAGMENT_INTERVAL"`
	Seed              int     `yaml:"seed" mapstructure:"seed" env:"SEED"`
	KeepRandom        bool    `yaml:"keep_random" mapstructure:"keep_random" env:"KEEP_RANDOM"`
	ParallelInfer     bool    `yaml:"parallel_infer" mapstructure:"parallel_infer" env:"PARALLEL_INFER"`
	RepetitionPenalty float64 `yaml:"repetition_penalty" mapstructure:"repetition_penalty" env:"REPETITION_PENALTY"`
	SampleSteps       string  `yaml:"sample_steps" mapstructure:"sample_steps" env:"SAMPLE_STEPS"`
	SuperSampling     bool    `yaml:"super_sampling" mapstructure:"super_sampling" env:"SUPER_SAMPLING"`

	// Playback
	OutputSampleRate int    `yaml:"output_sample_rate" mapstructure:"output_sample_rate" env:"OUTPUT_SAMPLE_RATE"`
	FallbackPlayer   string `yaml:"fallback_player" mapstructure:"fallback_player" env:"FALLBACK_PLAYER"`

	// Text preprocessing
	NormalizeWidth   bool              `yaml:"normalize_width" mapstructure:"normalize_width" env:"NORMALIZE_WIDTH"`
	ReplacementRules []ReplacementRule `yaml:"replacement_rules" mapstructure:"replacement_rules"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		VolumeDB:          0,
		MaxQueueSize:      5,
		ServerURL:         "http://localhost:9872/",
		RequestTimeout:    300 * time.Second,
		TextLang:          "中文",
		TopK:              5,
		TopP:              1.0,
		Temperature:       1.0,
		TextSplitMethod:   "不切",
		BatchSize:         20,
		SpeedFactor:       1.0,
		SplitBucket:       true,
		FragmentInterval:  0.3,
		Seed:              -1,
		KeepRandom:        true,
		ParallelInfer:     true,
		RepetitionPenalty: 1.35,
		SampleSteps:       "32",
		OutputSampleRate:  44100,
		FallbackPlayer:    "ffplay",
	}
}

// Normalize trims string fields, expands "~" in file paths and fills zero
// durations and rates with their defaults.
func (s *Settings) Normalize() {
	d := DefaultSettings()
	if s.RequestTimeout == 0 {
		s.RequestTimeout = d.RequestTimeout
	}
	if s.OutputSampleRate == 0 {
		s.OutputSampleRate = d.OutputSampleRate
	}
	s.ServerURL = strings.TrimSpace(s.ServerURL)
	s.SovitsModel = strings.TrimSpace(s.SovitsModel)
	s.GPTModel = strings.TrimSpace(s.GPTModel)
	s.TextLang = strings.TrimSpace(s.TextLang)
	s.RefAudioPath = expandPath(s.RefAudioPath)
	s.RefTextPath = expandPath(s.RefTextPath)
}

func expandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if expanded, err := homedir.Expand(p); err == nil {
		return expanded
	}
	return p
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if s.MaxQueueSize < 0 {
		return fmt.Errorf("%w: max_queue_size must be zero or positive, got %d", ErrInvalidConfig, s.MaxQueueSize)
	}

	if s.ServerURL != "" {
		u, err := url.Parse(s.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server_url must be an http(s) URL, got %q", ErrInvalidConfig, s.ServerURL)
		}
	}

	if s.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive, got %v", ErrInvalidConfig, s.RequestTimeout)
	}

	validSampleRates := []int{8000, 16000, 22050, 24000, 32000, 44100, 48000}
	valid := false
	for _, rate := range validSampleRates {
		if s.OutputSampleRate == rate {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: invalid output_sample_rate %d: must be one of %v", ErrInvalidConfig, s.OutputSampleRate, validSampleRates)
	}

	if s.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidConfig, s.TopK)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("%w: top_p must be between 0.0 and 1.0, got %f", ErrInvalidConfig, s.TopP)
	}
	if s.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative, got %f", ErrInvalidConfig, s.Temperature)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be at least 1, got %d", ErrInvalidConfig, s.BatchSize)
	}
	if s.SpeedFactor <= 0 {
		return fmt.Errorf("%w: speed_factor must be positive, got %f", ErrInvalidConfig, s.SpeedFactor)
	}
	return nil
}

// signature identifies the model selection implied by these settings.
func (s *Settings) signature() Signature {
	return Signature{
		BaseURL:     strings.TrimRight(s.ServerURL, "/"),
		SovitsModel: s.SovitsModel,
		GPTModel:    s.GPTModel,
		TextLang:    s.TextLang,
	}
}
