package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeFrame_ClampsOutOfRange(t *testing.T) {
	frame := EncodeFrame([]float32{0, 1, -1, 1.7, -2.5})
	want := []int16{0, 32767, -32767, 32767, -32767}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		if got != w {
			t.Fatalf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestEncodeFrame_Roundtrip(t *testing.T) {
	in := []float32{0.5, -0.25, 0.125}
	samples, err := DecodePCM16(EncodeFrame(in))
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range samples {
		got := float64(s) / 32767.0
		if math.Abs(got-float64(in[i])) > 0.001 {
			t.Fatalf("sample %d roundtrip = %f, want %f", i, got, in[i])
		}
	}
}

func TestDecodePCM16_RejectsOddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err == nil {
		t.Fatal("odd-length chunk should not decode")
	}
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Fatalf("empty energy = %f", got)
	}
	loud := EncodeFrame([]float32{1, -1, 1, -1})
	if got := RMSEnergy(loud); got < 0.9 {
		t.Fatalf("full-scale energy = %f, want ~1", got)
	}
}

type sinkRecorder struct {
	frames [][]byte
}

func (r *sinkRecorder) Enqueue(frame []byte) {
	r.frames = append(r.frames, frame)
}

func TestCaptureLine_FixedFramesInOrder(t *testing.T) {
	sink := &sinkRecorder{}
	line := NewCaptureLine(sink)
	line.Arm()

	// 2.5 frames of a ramp, pushed in uneven batches.
	total := FrameSamples*2 + FrameSamples/2
	samples := make([]float32, total)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	line.Push(samples[:700])
	line.Push(samples[700:1500])
	line.Push(samples[1500:])

	if len(sink.frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(sink.frames))
	}
	for i, f := range sink.frames {
		if len(f) != FrameSamples*2 {
			t.Fatalf("frame %d has %d bytes, want %d", i, len(f), FrameSamples*2)
		}
	}
	// First sample of second frame must be sample FrameSamples of the input.
	got := int16(binary.LittleEndian.Uint16(sink.frames[1]))
	want := int16(samples[FrameSamples] * 32767)
	if got != want {
		t.Fatalf("frame boundary sample = %d, want %d", got, want)
	}
}

func TestCaptureLine_DisarmedDropsAudio(t *testing.T) {
	sink := &sinkRecorder{}
	line := NewCaptureLine(sink)

	line.Push(make([]float32, FrameSamples*2))
	if len(sink.frames) != 0 {
		t.Fatalf("disarmed line forwarded %d frames", len(sink.frames))
	}

	line.Arm()
	line.Push(make([]float32, FrameSamples/2))
	line.Disarm()
	line.Arm()
	line.Push(make([]float32, FrameSamples/2))
	if len(sink.frames) != 0 {
		t.Fatal("partial frame survived a disarm cycle")
	}
}
