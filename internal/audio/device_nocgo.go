//go:build nocgo

package audio

import "context"

// DeviceRenderer is unavailable in builds without cgo.
type DeviceRenderer struct{}

// NewDeviceRenderer returns a renderer that always fails.
func NewDeviceRenderer(int) *DeviceRenderer {
	return &DeviceRenderer{}
}

// Name implements Renderer.
func (d *DeviceRenderer) Name() string {
	return "device"
}

// Render implements Renderer.
func (d *DeviceRenderer) Render(context.Context, *Buffer) error {
	return ErrDeviceUnavailable
}
