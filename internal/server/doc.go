// Package server exposes the TTS pipeline over HTTP: an enqueue endpoint, an
// inference server health probe, Prometheus metrics and a websocket feed of
// status events per live room.
package server
