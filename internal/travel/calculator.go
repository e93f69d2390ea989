package travel

import (
	"errors"
	"math"
	"time"
)

// Position bounds. 0 is fully closed, 100 fully open.
const (
	PositionClosed = 0
	PositionOpen   = 100
)

var (
	ErrInvalidTarget   = errors.New("invalid target: position must be within 0..100")
	ErrInvalidPosition = errors.New("invalid position: must be within 0..100")
)

// Status is the motion state of the calculator.
type Status int

const (
	Stopped Status = iota
	Traveling
)

func (s Status) String() string {
	if s == Traveling {
		return "traveling"
	}
	return "stopped"
}

// Direction is only meaningful while Traveling.
type Direction int

const (
	DirectionNone Direction = iota
	TowardOpen
	TowardClosed
)

func (d Direction) String() string {
	switch d {
	case TowardOpen:
		return "toward_open"
	case TowardClosed:
		return "toward_closed"
	default:
		return "none"
	}
}

// Calculator estimates cover position from elapsed travel time.
// It performs no I/O and is not safe for concurrent use; its owner serializes access.
type Calculator struct {
	closing time.Duration
	opening time.Duration
	now     func() time.Time

	status    Status
	direction Direction
	position  int // committed when stopped, travel origin while traveling
	target    int
	startedAt time.Time
}

// New returns a stopped calculator at position 0.
// A non-positive closing duration falls back to the opening duration.
// A nil clock defaults to time.Now.
func New(closing, opening time.Duration, now func() time.Time) *Calculator {
	if closing <= 0 {
		closing = opening
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		closing: closing,
		opening: opening,
		now:     now,
	}
}

// OpeningDuration is the full travel time from closed to open.
func (c *Calculator) OpeningDuration() time.Duration { return c.opening }

// ClosingDuration is the full travel time from open to closed.
func (c *Calculator) ClosingDuration() time.Duration { return c.closing }

func (c *Calculator) Status() Status       { return c.status }
func (c *Calculator) Direction() Direction { return c.direction }
func (c *Calculator) Target() int          { return c.target }
func (c *Calculator) IsTraveling() bool    { return c.status == Traveling }

// StartTravel begins an episode toward target, re-basing on the position
// interpolated at the moment of the call.
func (c *Calculator) StartTravel(target int) error {
	if !validPosition(target) {
		return ErrInvalidTarget
	}
	current := c.CurrentPosition()

	c.position = current
	c.target = target
	c.startedAt = c.now()
	c.status = Traveling
	switch {
	case target > current:
		c.direction = TowardOpen
	case target < current:
		c.direction = TowardClosed
	default:
		c.direction = DirectionNone
	}
	return nil
}

// StartTravelOpen travels toward the fully open position.
func (c *Calculator) StartTravelOpen() {
	_ = c.StartTravel(PositionOpen)
}

// StartTravelClosed travels toward the fully closed position.
func (c *Calculator) StartTravelClosed() {
	_ = c.StartTravel(PositionClosed)
}

// CurrentPosition returns the committed position when stopped, or the
// linearly interpolated position while traveling.
func (c *Calculator) CurrentPosition() int {
	if c.status != Traveling {
		return c.position
	}
	p := float64(c.position) + c.fraction()*float64(c.target-c.position)
	return clamp(int(math.Round(p)))
}

// PositionReached reports whether the active leg has saturated.
func (c *Calculator) PositionReached() bool {
	if c.status != Traveling {
		return true
	}
	return c.fraction() >= 1
}

// Stop freezes the interpolated position. Calling it again is a no-op.
func (c *Calculator) Stop() {
	if c.status == Traveling {
		c.position = c.CurrentPosition()
	}
	c.status = Stopped
	c.direction = DirectionNone
}

// SetPosition forces a stopped state at p. Used for restore and calibration.
func (c *Calculator) SetPosition(p int) error {
	if !validPosition(p) {
		return ErrInvalidPosition
	}
	c.position = p
	c.target = p
	c.status = Stopped
	c.direction = DirectionNone
	return nil
}

// fraction is elapsed/duration for the active leg, capped at 1.
func (c *Calculator) fraction() float64 {
	d := c.legDuration()
	if d <= 0 {
		return 1
	}
	elapsed := c.now().Sub(c.startedAt)
	if elapsed <= 0 {
		return 0
	}
	return math.Min(1, elapsed.Seconds()/d.Seconds())
}

func (c *Calculator) legDuration() time.Duration {
	switch c.direction {
	case TowardOpen:
		return c.opening
	case TowardClosed:
		return c.closing
	default:
		// zero distance: reached immediately
		return 0
	}
}

func validPosition(p int) bool {
	return p >= PositionClosed && p <= PositionOpen
}

func clamp(p int) int {
	if p < PositionClosed {
		return PositionClosed
	}
	if p > PositionOpen {
		return PositionOpen
	}
	return p
}
