package audio

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrDevice is returned when no usable capture device exists or the stream
// cannot be opened in the requested format
var ErrDevice = errors.New("audio device error")

// DefaultLoopbackPatterns are device name fragments of common loopback
// captures (VB-Audio cable, Windows stereo mix)
var DefaultLoopbackPatterns = []string{"CABLE Output", "Stereo Mix"}

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Config holds audio configuration
type Config struct {
	DeviceID         int // -1 selects by pattern, then the default input
	SampleRate       int
	Channels         int
	BlockSize        int // frames per callback
	Latency          LatencyMode
	LoopbackPatterns []string
}

// DefaultConfig returns the default capture configuration:
// 44.1kHz mono, 0.05s blocks, loopback devices preferred
func DefaultConfig() Config {
	return Config{
		DeviceID:         -1,
		SampleRate:       44100,
		Channels:         1,
		BlockSize:        BlockFrames(44100, 50*time.Millisecond),
		Latency:          LowLatency,
		LoopbackPatterns: DefaultLoopbackPatterns,
	}
}

// BlockFrames returns the number of frames in d at sampleRate
func BlockFrames(sampleRate int, d time.Duration) int {
	return int(math.Round(float64(sampleRate) * d.Seconds()))
}

// Sink receives captured blocks. It is called from the real-time audio
// callback and must return immediately. *ringbuffer.Buffer implements it
type Sink interface {
	PushBlock(samples []float32)
}

// Stream is an open, running capture
type Stream interface {
	// Device returns the device being captured
	Device() Device
	// Close stops and releases the device. Safe to call more than once
	Close() error
}

// Source opens capture streams
// This abstraction keeps the detection core independent of PortAudio
type Source interface {
	// ListDevices returns the available audio input devices
	ListDevices() ([]Device, error)

	// Open selects a device, opens a mono stream and starts delivering
	// blocks to sink
	Open(config Config, sink Sink) (Stream, error)
}

// SelectDevice picks the capture device: an explicit ID if configured, else
// the first device whose name contains a loopback pattern, else the default
// input. The bool result reports whether a loopback device matched
func SelectDevice(devices []Device, config Config) (Device, bool, error) {
	if len(devices) == 0 {
		return Device{}, false, ErrDevice
	}

	if config.DeviceID >= 0 {
		for _, dev := range devices {
			if dev.ID == config.DeviceID {
				return dev, false, nil
			}
		}
		return Device{}, false, errors.Join(ErrDevice, errors.New("configured device not found"))
	}

	for _, dev := range devices {
		for _, pattern := range config.LoopbackPatterns {
			if pattern != "" && strings.Contains(dev.Name, pattern) {
				return dev, true, nil
			}
		}
	}

	for _, dev := range devices {
		if dev.IsDefault {
			return dev, false, nil
		}
	}
	return Device{}, false, errors.Join(ErrDevice, errors.New("no default input device"))
}
