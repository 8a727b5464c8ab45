package audio

// CaptureCallback receives one batch of captured samples, normalized to
// [-1, 1], on the device's own callback goroutine.
type CaptureCallback func(samples []float32)

// RenderCallback fills out with the next block of output samples on the
// device's own callback goroutine. Unwritten samples must be left at zero.
type RenderCallback func(out []int16)

// DeviceInfo identifies one hardware device.
type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// System abstracts the audio backend so tests can run without hardware.
type System interface {
	// Devices enumerates capture devices.
	Devices() ([]DeviceInfo, error)

	// OpenCapture opens a capture device at the given format. A nil device
	// selects the platform default. The callback is invoked until Stop.
	OpenCapture(device *DeviceInfo, cfg Config, cb CaptureCallback) (CaptureDevice, error)

	// OpenPlayback opens the default output device at the given format.
	OpenPlayback(cfg Config, cb RenderCallback) (PlaybackDevice, error)

	// Close releases the backend context.
	Close()
}

// CaptureDevice is a started-or-stopped capture stream.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
}

// PlaybackDevice is a started-or-stopped output stream.
type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
}
