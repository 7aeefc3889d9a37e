package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# address of the HTTP API served by "bilivoice serve"
listen: "127.0.0.1:8765"

tts:
  # read texts aloud at all
  enabled: true
  # playback gain in dB, clamped to [-60, 24]
  volume_db: 0
  # capacity of each pipeline queue, 0 for unbounded
  max_queue_size: 5

  # GPT-SoVITS WebUI
  server_url: "http://localhost:9872/"
  ssl_verify: false
  request_timeout: "300s"

  # voice
  sovits_model: ""
  gpt_model: ""
  text_lang: "中文"
  ref_audio_path: ""
  ref_text_path: ""

  # inference parameters
  top_k: 5
  top_p: 1.0
  temperature: 1.0
  text_split_method: "不切"
  batch_size: 20
  speed_factor: 1.0
  ref_text_free: false
  split_bucket: true
  fragment_interval: 0.3
  seed: -1
  keep_random: true
  parallel_infer: true
  repetition_penalty: 1.35
  sample_steps: "32"
  super_sampling: false

  # playback
  output_sample_rate: 44100
  fallback_player: "ffplay"

  # text preprocessing, applied in order before synthesis
  normalize_width: false
  replacement_rules:
    # - key: "awsl"
    #   value: "啊我死了"
    #   match_case: false
    #   whole_word: true
    #   use_regex: false
    # with use_regex, values may reference groups as $1, ${name}, \1 or \g<name>
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the bilivoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the bilivoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("bilivoice config\nbilivoice config --config path/to/bilivoice.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("bilivoice", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
