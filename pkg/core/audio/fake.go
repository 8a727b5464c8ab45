package audio

import "sync"

// FakeSystem is an in-memory System for tests. Captured audio is pushed in
// with FeedCapture; rendered output is pulled with RenderNext.
type FakeSystem struct {
	mu          sync.Mutex
	capture     *FakeCapture
	playback    *FakePlayback
	CaptureErr  error
	PlaybackErr error
	closed      bool
}

func NewFakeSystem() *FakeSystem { return &FakeSystem{} }

func (f *FakeSystem) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "Fake Microphone"}}, nil
}

func (f *FakeSystem) OpenCapture(_ *DeviceInfo, _ Config, cb CaptureCallback) (CaptureDevice, error) {
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = &FakeCapture{cb: cb}
	return f.capture, nil
}

func (f *FakeSystem) OpenPlayback(_ Config, cb RenderCallback) (PlaybackDevice, error) {
	if f.PlaybackErr != nil {
		return nil, f.PlaybackErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = &FakePlayback{cb: cb}
	return f.playback, nil
}

func (f *FakeSystem) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *FakeSystem) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Capture returns the opened fake capture device, or nil.
func (f *FakeSystem) Capture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture
}

// Playback returns the opened fake playback device, or nil.
func (f *FakeSystem) Playback() *FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playback
}

type FakeCapture struct {
	mu      sync.Mutex
	cb      CaptureCallback
	started bool
	stopped bool
	closed  bool
}

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *FakeCapture) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FeedCapture simulates the hardware delivering captured samples.
func (c *FakeCapture) FeedCapture(samples []float32) {
	c.mu.Lock()
	cb := c.cb
	started, stopped := c.started, c.stopped
	c.mu.Unlock()
	if cb != nil && started && !stopped {
		cb(samples)
	}
}

type FakePlayback struct {
	mu      sync.Mutex
	cb      RenderCallback
	started bool
	stopped bool
	closed  bool
}

func (p *FakePlayback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return nil
}

func (p *FakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *FakePlayback) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// RenderNext simulates the hardware asking for n output samples.
func (p *FakePlayback) RenderNext(n int) []int16 {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	out := make([]int16, n)
	if cb != nil {
		cb(out)
	}
	return out
}
