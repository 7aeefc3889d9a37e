package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/bilivoice/internal/tts"
)

var (
	sayPriority string
	sayTimeout  time.Duration

	sayCmd = &cobra.Command{
		Use:     "say TEXT...",
		Short:   "Speak texts through the pipeline and wait until they finish",
		Long:    paragraph(fmt.Sprintf("\n%s each argument as a separate announcement and wait until all of them are played or cancelled.", keyword("Enqueue"))),
		Example: paragraph("bilivoice say 欢迎来到直播间\nbilivoice say --priority high \"感谢老板的火箭\""),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := currentSettings()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if sayTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, sayTimeout)
				defer cancel()
			}
			return say(ctx, settings, tts.ParsePriority(sayPriority), args)
		},
	}
)

func init() {
	sayCmd.Flags().StringVarP(&sayPriority, "priority", "p", "normal", "priority of the texts (high or normal)")
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 10*time.Minute, "give up waiting after this long (0 waits forever)")
}

// tracker collects terminal statuses of the keys it waits for.
type tracker struct {
	mu      sync.Mutex
	pending map[string]string
}

func newTracker() *tracker {
	return &tracker{pending: make(map[string]string)}
}

func (t *tracker) add(key, text string) {
	t.mu.Lock()
	t.pending[key] = text
	t.mu.Unlock()
}

func (t *tracker) forget(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

func (t *tracker) listen(_ int64, key string, status tts.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	text, ok := t.pending[key]
	if !ok {
		return
	}
	switch status {
	case tts.StatusPlaying:
		fmt.Println(okStyle.Render("▶"), text)
	case tts.StatusCancelled:
		fmt.Println(failStyle.Render("✗"), text, faint("(cancelled)"))
	}
	if status.Terminal() {
		delete(t.pending, key)
	}
}

func (t *tracker) remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func say(ctx context.Context, settings tts.Settings, priority tts.Priority, texts []string) error {
	svc, err := tts.New(settings)
	if err != nil {
		return err
	}
	tr := newTracker()
	svc.SetStatusListener(tr.listen)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	refused := 0
	for _, text := range texts {
		key := uuid.NewString()
		tr.add(key, strings.TrimSpace(text))
		if !svc.Enqueue(text, priority, key, 0) {
			tr.forget(key)
			refused++
			fmt.Println(failStyle.Render("✗"), text, faint("(refused)"))
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for tr.remaining() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d text(s) still pending: %w", tr.remaining(), ctx.Err())
		case <-ticker.C:
		}
	}

	if refused > 0 {
		return errors.New("some texts were refused")
	}
	return nil
}
