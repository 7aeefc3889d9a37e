package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/bilivoice/internal/metrics"
	"github.com/dgnsrekt/bilivoice/internal/server"
	"github.com/dgnsrekt/bilivoice/internal/tts"
)

const defaultListenAddr = "127.0.0.1:8765"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the TTS pipeline and its HTTP API",
	Long:    paragraph(fmt.Sprintf("\n%s the predict and playback workers and serve the enqueue API, status websocket and metrics. The config file is reloaded when it changes.", keyword("Start"))),
	Example: paragraph("bilivoice serve\nbilivoice serve --listen :8765 --server-url http://127.0.0.1:9872/"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, viper.GetString("listen"))
	},
}

func init() {
	serveCmd.Flags().String("listen", defaultListenAddr, "address of the HTTP API")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.SetDefault("listen", defaultListenAddr)
}

func serve(ctx context.Context, addr string) error {
	settings, err := currentSettings()
	if err != nil {
		return err
	}

	m := metrics.New()
	hub := server.NewHub(log.Default().WithPrefix("ws"))

	svc, err := tts.New(settings, tts.WithMetrics(m))
	if err != nil {
		return err
	}
	svc.SetStatusListener(hub.Publish)

	g, ctx := errgroup.WithContext(ctx)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadSettings(svc, e)
		})
		viper.WatchConfig()
	}

	srv := server.New(svc, hub, server.WithMetrics(m))
	g.Go(func() error {
		return srv.Run(ctx, addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return svc.Close()
	})

	return g.Wait()
}

// reloadSettings applies the changed config file to svc. An invalid file is
// reported and the running settings are kept.
func reloadSettings(svc *tts.Service, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	settings, err := currentSettings()
	if err != nil {
		log.Error("Ignoring invalid configuration", "path", e.Name, "err", err)
		return
	}
	if err := svc.UpdateSettings(settings); err != nil {
		log.Error("Ignoring invalid configuration", "path", e.Name, "err", err)
		return
	}
	log.Info("Configuration reloaded", "path", e.Name)
}
