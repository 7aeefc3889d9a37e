package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bilivoice/internal/gradio"
)

var (
	healthURL     string
	healthTimeout time.Duration

	healthCmd = &cobra.Command{
		Use:     "health",
		Short:   "Check that the GPT-SoVITS WebUI is reachable",
		Long:    paragraph(fmt.Sprintf("\n%s the configured inference server, or the one given with --url.", keyword("Probe"))),
		Example: paragraph("bilivoice health\nbilivoice health --url http://127.0.0.1:9872/"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := currentSettings()
			if err != nil {
				return err
			}
			url := settings.ServerURL
			if healthURL != "" {
				url = healthURL
			}

			h := gradio.Probe(cmd.Context(), url, healthTimeout, !settings.SSLVerify)
			if h.OK && h.Ready {
				fmt.Println(okStyle.Render("ready"), h.URL)
				return nil
			}
			fmt.Println(failStyle.Render("unreachable"), h.URL, faint(h.Message))
			return errors.New("inference server is not ready")
		},
	}
)

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "", "probe this URL instead of the configured one")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", gradio.DefaultProbeTimeout, "probe timeout")
}
