package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DefaultPlayerCommand is used when no fallback player is configured.
const DefaultPlayerCommand = "ffplay"

// CommandRenderer writes each clip to a temporary WAV file and plays it with
// an external program.
type CommandRenderer struct {
	name string
	args []string
}

// NewCommandRenderer creates a renderer for binary. When binary is ffplay the
// usual headless flags are added.
func NewCommandRenderer(binary string, args ...string) *CommandRenderer {
	if binary == "" {
		binary = DefaultPlayerCommand
	}
	if len(args) == 0 && strings.TrimSuffix(binary, ".exe") == DefaultPlayerCommand {
		args = []string{"-autoexit", "-nodisp", "-loglevel", "error"}
	}
	return &CommandRenderer{name: binary, args: args}
}

// Name implements Renderer.
func (c *CommandRenderer) Name() string {
	return c.name
}

// Available reports whether the binary can be found in PATH.
func (c *CommandRenderer) Available() bool {
	_, err := exec.LookPath(c.name)
	return err == nil
}

// Render implements Renderer.
func (c *CommandRenderer) Render(ctx context.Context, b *Buffer) error {
	bin, err := exec.LookPath(c.name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", c.name, err)
	}

	f, err := os.CreateTemp("", "bilivoice-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if err := b.WriteWAV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp wav: %w", err)
	}

	args := append(append([]string(nil), c.args...), path)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", c.name, ctx.Err())
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s failed: %w\nstderr: %s", c.name, err, s)
		}
		return fmt.Errorf("%s failed: %w", c.name, err)
	}
	return nil
}
