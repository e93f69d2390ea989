package actuator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"timebased_cover/internal/logger"

	"github.com/stianeikeland/go-rpio/v4"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver is the pin-level interface used by the GPIO relay backend.
// It allows plugging in a real Raspberry Pi implementation or a mock.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver returns a MockDriver when mock is true, otherwise a go-rpio driver.
func NewDriver(mock bool, log *logger.Logger) (Driver, error) {
	if log == nil {
		log = logger.Nop()
	}
	if mock {
		log.Infow("gpio_driver", "kind", "mock")
		return NewMockDriver(), nil
	}
	log.Infow("gpio_driver", "kind", "rpio")
	return NewRPiDriver()
}

// MockDriver latches written levels in memory. Used for development on PC and tests.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	modes  map[int]PinMode
}

func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level), modes: make(map[int]PinMode)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error { return nil }

// RPiDriver drives Raspberry Pi pins through go-rpio.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiDriver memory-maps the GPIO registers.
// Requires a Raspberry Pi with access to /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup(pin, mode)
}

func (r *RPiDriver) setup(pin int, mode PinMode) error {
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// ReadPin reads the pin level; on an output pin this is the latched value.
func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		return Low, fmt.Errorf("pin %d not set up", pin)
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// Close releases all relays (drives them inactive) and unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}

// GPIOConfig configures the relay backend.
type GPIOConfig struct {
	Pins      []int         // BCM pin numbers used as relay outputs
	ActiveLow bool          // relay boards that energize on LOW
	Settle    time.Duration // extra delay after a write when wait is requested
}

// GPIO is a relay bank where actuator ids are BCM pin numbers ("17").
type GPIO struct {
	driver Driver
	cfg    GPIOConfig
	pins   map[int]struct{}
}

var _ Backend = (*GPIO)(nil)

// NewGPIO configures every pin as an output and releases it.
func NewGPIO(driver Driver, cfg GPIOConfig) (*GPIO, error) {
	g := &GPIO{driver: driver, cfg: cfg, pins: make(map[int]struct{}, len(cfg.Pins))}
	for _, pin := range cfg.Pins {
		if err := driver.SetupPin(pin, Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
		if err := driver.WritePin(pin, g.level(false)); err != nil {
			return nil, fmt.Errorf("release pin %d: %w", pin, err)
		}
		g.pins[pin] = struct{}{}
	}
	return g, nil
}

func (g *GPIO) Send(ctx context.Context, id string, on bool, wait bool) error {
	pin, err := g.pin(id)
	if err != nil {
		return err
	}
	if err := g.driver.WritePin(pin, g.level(on)); err != nil {
		return err
	}
	if wait && g.cfg.Settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.cfg.Settle):
		}
	}
	return nil
}

func (g *GPIO) QueryState(_ context.Context, id string) (State, error) {
	pin, err := g.pin(id)
	if err != nil {
		return Unknown, err
	}
	lvl, err := g.driver.ReadPin(pin)
	if err != nil {
		return Unavailable, nil
	}
	return stateFor(lvl == g.level(true)), nil
}

func (g *GPIO) Close() error {
	for pin := range g.pins {
		_ = g.driver.WritePin(pin, g.level(false))
	}
	return g.driver.Close()
}

func (g *GPIO) pin(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("gpio id %q: %w", id, ErrUnknownActuator)
	}
	if _, ok := g.pins[n]; !ok {
		return 0, fmt.Errorf("gpio pin %d: %w", n, ErrUnknownActuator)
	}
	return n, nil
}

func (g *GPIO) level(on bool) Level {
	if g.cfg.ActiveLow {
		return Level(!on)
	}
	return Level(on)
}
