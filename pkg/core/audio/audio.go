// Package audio implements the local half of a live conversation: microphone
// capture, wire-format conversion, and gapless scheduling of agent speech on
// the output device.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Config specifies audio format parameters for one direction of the stream.
type Config struct {
	// SampleRate in Hz. The capture side runs at 16000, playback at 24000.
	SampleRate int

	// Channels: 1 for mono. The live channel only carries mono audio.
	Channels int

	// BitsPerSample: 16 for the wire PCM format.
	BitsPerSample int
}

// CaptureConfig returns the fixed input format expected by the remote channel.
func CaptureConfig() Config {
	return Config{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// PlaybackConfig returns the fixed output format produced by the remote channel.
func PlaybackConfig() Config {
	return Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c Config) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// FrameSamples is the fixed size of one captured frame, in samples.
const FrameSamples = 1024

// EncodeFrame converts one frame of normalized float32 samples to 16-bit
// signed little-endian PCM for the wire.
//
// Out-of-range samples are clamped to [-1, 1] before scaling. Unclamped
// conversion would wrap at the integer boundary and turn a loud input into a
// full-scale click, so saturation is the policy here.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to int16 samples.
// An odd-length chunk is malformed and rejected so the caller can skip it.
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 chunk has odd length %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// RMSEnergy computes the root-mean-square energy of 16-bit signed
// little-endian PCM. Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}
