// Package main provides the entry point for the bilivoice CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/bilivoice/internal/tts"
)

const appName = "bilivoice"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	envFile    string
	serverURL  string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Read live-room messages aloud with a GPT-SoVITS voice",
		Long: paragraph(
			fmt.Sprintf("\nQueue live-room texts, synthesize them on a %s and %s them in order.",
				keyword("GPT-SoVITS WebUI"), keyword("play")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
	}
)

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is bilivoice.yml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading BILIVOICE_* variables")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "GPT-SoVITS WebUI URL, overriding the config file")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	tts.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(serveCmd, sayCmd, healthCmd, configCmd, manCmd)
}

// configDirs lists the directories searched for bilivoice.yml, most specific
// first.
func configDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}
	if c := os.Getenv("BILIVOICE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// loadConfig layers the dotenv file and the YAML config file into viper. The
// tts section is decoded later by tts.LoadSettings.
func loadConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Warn("Could not load env file", "path", envFile, "err", err)
		}
	}

	viper.SetEnvPrefix(appName)
	viper.AutomaticEnv()
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	dirs, err := configDirs()
	if err != nil {
		return err
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Debug("Configuration file does not exist yet", "path", configFile)
			return nil
		}
		viper.SetConfigFile(configFile)
	} else {
		for _, v := range dirs {
			viper.AddConfigPath(v)
		}
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("could not parse configuration file: %w", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return nil
	}
	if configFile == "" {
		configFile = filepath.Join(dirs[0], appName+".yml")
	}
	return nil
}

// currentSettings decodes the tts section of the global viper instance and
// applies the --server-url flag on top.
func currentSettings() (tts.Settings, error) {
	s, err := tts.LoadSettings(viper.GetViper())
	if err != nil {
		return tts.Settings{}, err
	}
	if serverURL != "" {
		s.ServerURL = serverURL
		s.Normalize()
		if err := s.Validate(); err != nil {
			return tts.Settings{}, err
		}
	}
	return s, nil
}
