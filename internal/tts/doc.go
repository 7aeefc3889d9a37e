// Package tts is the generation-and-playback pipeline.
//
// Texts enter through Service.Enqueue, pass a predict stage that asks a
// GPT-SoVITS WebUI to synthesize them, and end in a playback stage that
// renders the resulting clips locally. Both stages sit behind bounded priority
// queues; when a queue is full, high-priority announcements displace the
// oldest normal ones. Listeners observe every task through status events
// (pending, playing, done, cancelled).
package tts
