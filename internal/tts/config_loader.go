package tts

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that overrides a setting,
// e.g. BILIVOICE_SERVER_URL.
const EnvPrefix = "BILIVOICE_"

// configKey is the viper section holding the settings.
const configKey = "tts"

// SetDefaults registers the default settings with v so that every key is
// known to viper even when absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("tts.enabled", d.Enabled)
	v.SetDefault("tts.volume_db", d.VolumeDB)
	v.SetDefault("tts.max_queue_size", d.MaxQueueSize)
	v.SetDefault("tts.server_url", d.ServerURL)
	v.SetDefault("tts.ssl_verify", d.SSLVerify)
	v.SetDefault("tts.request_timeout", d.RequestTimeout)
	v.SetDefault("tts.sovits_model", d.SovitsModel)
	v.SetDefault("tts.gpt_model", d.GPTModel)
	v.SetDefault("tts.text_lang", d.TextLang)
	v.SetDefault("tts.ref_audio_path", d.RefAudioPath)
	v.SetDefault("tts.ref_text_path", d.RefTextPath)
	v.SetDefault("tts.top_k", d.TopK)
	v.SetDefault("tts.top_p", d.TopP)
	v.SetDefault("tts.temperature", d.Temperature)
	v.SetDefault("tts.text_split_method", d.TextSplitMethod)
	v.SetDefault("tts.batch_size", d.BatchSize)
	v.SetDefault("tts.speed_factor", d.SpeedFactor)
	v.SetDefault("tts.ref_text_free", d.RefTextFree)
	v.SetDefault("tts.split_bucket", d.SplitBucket)
	v.SetDefault("tts.fragment_interval", d.FragmentInterval)
	v.SetDefault("tts.seed", d.Seed)
	v.SetDefault("tts.keep_random", d.KeepRandom)
	v.SetDefault("tts.parallel_infer", d.ParallelInfer)
	v.SetDefault("tts.repetition_penalty", d.RepetitionPenalty)
	v.SetDefault("tts.sample_steps", d.SampleSteps)
	v.SetDefault("tts.super_sampling", d.SuperSampling)
	v.SetDefault("tts.output_sample_rate", d.OutputSampleRate)
	v.SetDefault("tts.fallback_player", d.FallbackPlayer)
	v.SetDefault("tts.normalize_width", d.NormalizeWidth)
}

// LoadSettings reads the tts section of v, overlays BILIVOICE_* environment
// variables, then normalizes and validates the result.
func LoadSettings(v *viper.Viper) (Settings, error) {
	s := DefaultSettings()
	if v.IsSet(configKey) {
		if err := v.UnmarshalKey(configKey, &s); err != nil {
			return Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if err := ApplyEnv(&s); err != nil {
		return Settings{}, err
	}

	s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overrides fields of s from BILIVOICE_* environment variables.
// Unset variables leave the field untouched.
func ApplyEnv(s *Settings) error {
	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: environment: %w", ErrInvalidConfig, err)
	}
	return nil
}
