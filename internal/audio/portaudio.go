package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/deepwater-app/deepwater/internal/logger"
)

// PortAudioSource implements Source using PortAudio
type PortAudioSource struct {
	log logger.Sink
}

// NewPortAudioSource creates a PortAudio-backed source
func NewPortAudioSource(log logger.Sink) *PortAudioSource {
	if log == nil {
		log = logger.Nop{}
	}
	return &PortAudioSource{log: log}
}

// ListDevices returns a list of available audio input devices
func (s *PortAudioSource) ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %w", ErrDevice, err)
	}
	defer portaudio.Terminate()

	devices, _, err := inputDevices()
	return devices, err
}

// inputDevices lists input-capable devices. PortAudio must be initialized
func inputDevices() ([]Device, []*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to list devices: %w", ErrDevice, err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range infos {
		// Only include devices with input channels
		if dev.MaxInputChannels <= 0 {
			continue
		}
		result = append(result, Device{
			ID:        i,
			Name:      dev.Name,
			IsDefault: defaultInput != nil && dev.Name == defaultInput.Name,
		})
	}
	return result, infos, nil
}

// Open selects a device and starts a mono float32 stream feeding sink
func (s *PortAudioSource) Open(config Config, sink Sink) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %w", ErrDevice, err)
	}

	stream := &portAudioStream{terminate: true}
	ok := false
	defer func() {
		if !ok {
			stream.Close()
		}
	}()

	devices, infos, err := inputDevices()
	if err != nil {
		return nil, err
	}

	dev, loopback, err := SelectDevice(devices, config)
	if err != nil {
		return nil, err
	}
	if loopback {
		s.log.Info("Capture device: %s", dev.Name)
	} else {
		s.log.Info("Using default capture device: %s", dev.Name)
	}

	info := infos[dev.ID]
	latency := info.DefaultHighInputLatency
	if config.Latency == LowLatency {
		latency = info.DefaultLowInputLatency
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.BlockSize,
	}

	// The callback runs on PortAudio's real-time thread: copy into the
	// sink and return, nothing else
	callback := func(in []float32) {
		sink.PushBlock(in)
	}

	paStream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open stream on %q: %w", ErrDevice, dev.Name, err)
	}
	stream.stream = paStream
	stream.device = dev

	if err := paStream.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start stream: %w", ErrDevice, err)
	}
	stream.started = true

	ok = true
	return stream, nil
}

// portAudioStream owns one PortAudio stream and one Initialize reference
type portAudioStream struct {
	mu        sync.Mutex
	stream    *portaudio.Stream
	device    Device
	started   bool
	terminate bool
	closed    bool
}

func (s *portAudioStream) Device() Device {
	return s.device
}

// Close stops the stream, releases it and drops the PortAudio reference
// The first error is returned; later calls are no-ops
func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.stream != nil {
		if s.started {
			if err := s.stream.Stop(); err != nil {
				firstErr = fmt.Errorf("failed to stop stream: %w", err)
			}
		}
		if err := s.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close stream: %w", err)
		}
		s.stream = nil
	}

	if s.terminate {
		if err := portaudio.Terminate(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to terminate PortAudio: %w", err)
		}
	}
	return firstErr
}
