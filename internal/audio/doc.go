// Package audio holds synthesized clips in memory and renders them.
//
// A Buffer is decoded once from the bytes the inference server returns (WAV
// or MP3) and supports the two operations the pipeline needs: a gain
// adjustment in decibels and export to 16-bit linear PCM. Renderers play a
// Buffer to completion; DeviceRenderer writes to the sound card through oto,
// CommandRenderer shells out to an external player, and Fallback chains them.
package audio
