package cover

import (
	"context"
	"errors"
	"sync"
	"time"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/logger"
	"timebased_cover/internal/models"
	"timebased_cover/internal/travel"
)

const (
	// ClosedThreshold absorbs interpolation rounding: at or below it the cover reports closed.
	ClosedThreshold = 10

	DefaultPollInterval   = 100 * time.Millisecond
	DefaultCommandTimeout = 5 * time.Second
)

// ErrCalibrating is returned for motion commands while a calibration run is in flight.
var ErrCalibrating = errors.New("cover is calibrating")

// Config identifies one cover and its actuators.
type Config struct {
	ID            string
	Name          string
	OpenDuration  time.Duration // full travel closed -> open
	CloseDuration time.Duration // full travel open -> closed; zero means OpenDuration
	OpenSwitch    string
	CloseSwitch   string
	StopSwitch    string // optional

	PollInterval   time.Duration
	CommandTimeout time.Duration
}

// transition is an actuator command sequence.
type transition int

const (
	opening transition = iota
	closing
	stopping
)

// episode is an owned, cancellable scheduled callback. The id lets a
// callback that already fired detect that it was superseded.
type episode struct {
	id     uint64
	cancel Cancel
}

// Controller drives one time-based cover: it commands the actuators, tracks
// the estimated position and reconciles manual switch operation.
//
// All entry points are serialized by one mutex, so timer callbacks, API
// commands and actuator events never interleave.
type Controller struct {
	cfg   Config
	sw    actuator.Switches
	sched Scheduler
	log   *logger.Logger

	mu        sync.Mutex
	tc        *travel.Calculator
	available bool
	observed  map[string]actuator.State
	poll      *episode
	calib     *episode
	episodes  uint64

	listeners []func(models.CoverState)
	recorders []func(models.CoverEvent)

	// flushed to listeners after the mutex is released
	pendingState  bool
	pendingEvents []models.CoverEvent
}

// New builds a controller. A nil sched uses wall-clock timers, a nil log discards output.
func New(cfg Config, sw actuator.Switches, sched Scheduler, log *logger.Logger) *Controller {
	if sched == nil {
		sched = RealScheduler{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.CloseDuration <= 0 {
		cfg.CloseDuration = cfg.OpenDuration
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Controller{
		cfg:       cfg,
		sw:        sw,
		sched:     sched,
		log:       log,
		tc:        travel.New(cfg.CloseDuration, cfg.OpenDuration, sched.Now),
		available: true,
		observed:  make(map[string]actuator.State, 3),
	}
}

func (c *Controller) ID() string     { return c.cfg.ID }
func (c *Controller) Name() string   { return c.cfg.Name }
func (c *Controller) Config() Config { return c.cfg }

// Switches returns the actuator ids owned by this cover.
func (c *Controller) Switches() []string {
	ids := []string{c.cfg.OpenSwitch, c.cfg.CloseSwitch}
	if c.cfg.StopSwitch != "" {
		ids = append(ids, c.cfg.StopSwitch)
	}
	return ids
}

// OnUpdate registers a listener for state snapshots. Listeners are called
// outside the controller lock, on every change and every poll tick.
func (c *Controller) OnUpdate(fn func(models.CoverState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// OnEvent registers a listener for log events.
func (c *Controller) OnEvent(fn func(models.CoverEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorders = append(c.recorders, fn)
}

// ---- Queries ----

func (c *Controller) CurrentPosition() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc.CurrentPosition()
}

func (c *Controller) IsOpening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpening()
}

func (c *Controller) IsClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosing()
}

func (c *Controller) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc.CurrentPosition() <= ClosedThreshold
}

func (c *Controller) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *Controller) Calibrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calib != nil
}

// PollActive reports whether the auto-updater is running.
func (c *Controller) PollActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll != nil
}

func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) Snapshot() models.CoverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// ---- Commands ----

// Open drives the cover toward fully open.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	if c.calib != nil {
		return ErrCalibrating
	}
	if !c.checkAvailable(ctx) {
		return nil
	}
	c.log.Debugw("cover_open", "cover", c.cfg.ID, "position", c.tc.CurrentPosition())
	c.sequence(ctx, opening)
	c.tc.StartTravelOpen()
	c.startPoll()
	c.record(models.EventOpen, "Open requested", nil)
	return nil
}

// Close drives the cover toward fully closed.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	if c.calib != nil {
		return ErrCalibrating
	}
	if !c.checkAvailable(ctx) {
		return nil
	}
	c.log.Debugw("cover_close", "cover", c.cfg.ID, "position", c.tc.CurrentPosition())
	c.sequence(ctx, closing)
	c.tc.StartTravelClosed()
	c.startPoll()
	c.record(models.EventClose, "Close requested", nil)
	return nil
}

// Stop halts the actuators and freezes the estimate. It also aborts a calibration run.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	if !c.checkAvailable(ctx) {
		return nil
	}
	if c.cancelCalibration() {
		c.log.Warnw("cover_calibration_aborted", "cover", c.cfg.ID)
	}
	c.sequence(ctx, stopping)
	c.halt()
	c.record(models.EventStop, "Stop requested", map[string]any{"position": c.tc.CurrentPosition()})
	return nil
}

// SetPosition moves the cover to target. At the current position no actuator
// is energized; the poll then sees the target reached and stops any motion.
func (c *Controller) SetPosition(ctx context.Context, target int) error {
	if target < travel.PositionClosed || target > travel.PositionOpen {
		return travel.ErrInvalidTarget
	}
	c.mu.Lock()
	defer c.unlock()
	if c.calib != nil {
		return ErrCalibrating
	}
	if !c.checkAvailable(ctx) {
		return nil
	}
	current := c.tc.CurrentPosition()
	c.log.Debugw("cover_set_position", "cover", c.cfg.ID, "current", current, "target", target)
	switch {
	case target > current:
		c.sequence(ctx, opening)
	case target < current:
		c.sequence(ctx, closing)
	}
	if err := c.tc.StartTravel(target); err != nil {
		return err
	}
	c.startPoll()
	c.record(models.EventSetPosition, "Position requested", map[string]any{"from": current, "to": target})
	return nil
}

// Calibrate runs the open actuator for the full opening duration regardless
// of the current estimate, then forces the fully open position and stops.
// Other motion commands are rejected until it completes or is aborted.
func (c *Controller) Calibrate(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	if c.calib != nil {
		return ErrCalibrating
	}
	if !c.checkAvailable(ctx) {
		return nil
	}
	c.sequence(ctx, opening)
	// tracked as an opening leg so an abort keeps the interpolated position
	c.tc.StartTravelOpen()
	c.startPoll()

	id := c.nextEpisode()
	c.calib = &episode{id: id}
	c.calib.cancel = c.sched.After(c.cfg.OpenDuration, func() { c.finishCalibration(id) })

	c.log.Infow("cover_calibration_started", "cover", c.cfg.ID, "duration", c.cfg.OpenDuration)
	c.record(models.EventCalibrate, "Calibration started", map[string]any{"duration_s": c.cfg.OpenDuration.Seconds()})
	return nil
}

// Restore forces a persisted position at startup.
func (c *Controller) Restore(position int) error {
	c.mu.Lock()
	defer c.unlock()
	if err := c.tc.SetPosition(position); err != nil {
		return err
	}
	c.log.Debugw("cover_restored", "cover", c.cfg.ID, "position", position)
	c.pendingState = true
	return nil
}

// CheckAvailability re-queries every actuator and returns the result.
func (c *Controller) CheckAvailability(ctx context.Context) bool {
	c.mu.Lock()
	defer c.unlock()
	return c.checkAvailable(ctx)
}

// Shutdown cancels the auto-updater and any calibration run. Idempotent.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.unlock()
	c.cancelPoll()
	c.cancelCalibration()
	c.tc.Stop()
}

// ---- External reconciliation ----

// Listen applies state changes from events until ctx ends or the channel closes.
func (c *Controller) Listen(ctx context.Context, events <-chan actuator.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.HandleStateChange(ev)
		}
	}
}

// HandleStateChange maps a manual actuator toggle onto the same open, close
// and stop entry points, without re-commanding actuators that are already in
// the observed state. Echoes of our own commands are ignored.
func (c *Controller) HandleStateChange(ev actuator.StateChange) {
	c.mu.Lock()
	defer c.unlock()
	if !c.owns(ev.ID) || ev.Old == ev.New {
		return
	}
	if ev.Origin.SelfOriginated() {
		c.observed[ev.ID] = ev.New
		return
	}
	if prev, ok := c.observed[ev.ID]; ok && prev == ev.New {
		return
	}
	c.observed[ev.ID] = ev.New

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()

	if !ev.New.Usable() {
		c.markUnavailable(ev.ID, ev.New)
		return
	}
	if !c.available && !c.checkAvailable(ctx) {
		return
	}
	if !ev.Old.Usable() {
		// recovery from unavailable/unknown, not a switch press
		return
	}

	if ev.ID == c.cfg.StopSwitch && ev.New == actuator.Off {
		return
	}

	aborted := c.cancelCalibration()
	openOn := c.observed[c.cfg.OpenSwitch] == actuator.On
	closeOn := c.observed[c.cfg.CloseSwitch] == actuator.On
	meta := map[string]any{"actuator": ev.ID, "old": ev.Old, "new": ev.New}
	if aborted {
		meta["calibration_aborted"] = true
	}

	switch {
	case ev.ID == c.cfg.StopSwitch:
		c.halt()
		c.record(models.EventManual, "Manual stop", meta)
	case openOn && closeOn:
		// conflicting input: de-energize both
		c.log.Warnw("cover_conflicting_actuators", "cover", c.cfg.ID)
		c.sequence(ctx, stopping)
		c.halt()
		c.record(models.EventManual, "Conflicting manual input, stopped", meta)
	case openOn:
		c.tc.StartTravelOpen()
		c.startPoll()
		c.record(models.EventManual, "Manual open", meta)
	case closeOn:
		c.tc.StartTravelClosed()
		c.startPoll()
		c.record(models.EventManual, "Manual close", meta)
	default:
		c.halt()
		c.record(models.EventManual, "Manual stop", meta)
	}
}

// ---- internals (mutex held) ----

func (c *Controller) owns(id string) bool {
	if id == "" {
		return false
	}
	return id == c.cfg.OpenSwitch || id == c.cfg.CloseSwitch || id == c.cfg.StopSwitch
}

func (c *Controller) isOpening() bool {
	return c.calib != nil || (c.tc.IsTraveling() && c.tc.Direction() == travel.TowardOpen)
}

func (c *Controller) isClosing() bool {
	return c.calib == nil && c.tc.IsTraveling() && c.tc.Direction() == travel.TowardClosed
}

func (c *Controller) state() string {
	switch {
	case !c.available:
		return models.StateUnavailable
	case c.isOpening():
		return models.StateOpening
	case c.isClosing():
		return models.StateClosing
	default:
		return models.StateIdle
	}
}

func (c *Controller) snapshot() models.CoverState {
	pos := c.tc.CurrentPosition()
	target := pos
	if c.tc.IsTraveling() {
		target = c.tc.Target()
	}
	if c.calib != nil {
		target = travel.PositionOpen
	}
	return models.CoverState{
		ID:              c.cfg.ID,
		Name:            c.cfg.Name,
		Position:        pos,
		TargetPosition:  target,
		State:           c.state(),
		Available:       c.available,
		IsOpening:       c.isOpening(),
		IsClosing:       c.isClosing(),
		IsClosed:        pos <= ClosedThreshold,
		Calibrating:     c.calib != nil,
		AssumedState:    true,
		TravelTimeOpen:  c.cfg.OpenDuration.Seconds(),
		TravelTimeClose: c.cfg.CloseDuration.Seconds(),
		UpdatedAt:       c.sched.Now().UTC(),
	}
}

// checkAvailable queries every actuator; any unusable one makes the cover unavailable.
func (c *Controller) checkAvailable(ctx context.Context) bool {
	for _, id := range c.Switches() {
		st, err := c.sw.QueryState(ctx, id)
		if err != nil {
			c.log.Warnw("cover_query_failed", "cover", c.cfg.ID, "actuator", id, "err", err)
			st = actuator.Unknown
		}
		if !st.Usable() {
			c.markUnavailable(id, st)
			return false
		}
	}
	if !c.available {
		c.log.Infow("cover_available", "cover", c.cfg.ID)
		c.pendingState = true
	}
	c.available = true
	return true
}

// markUnavailable stops tracking motion; nothing can be commanded until recovery.
func (c *Controller) markUnavailable(id string, st actuator.State) {
	if c.cancelCalibration() {
		c.log.Warnw("cover_calibration_aborted", "cover", c.cfg.ID, "reason", "unavailable")
	}
	c.halt()
	if !c.available {
		return
	}
	c.available = false
	c.log.Warnw("cover_unavailable", "cover", c.cfg.ID, "actuator", id, "state", st)
	c.record(models.EventUnavailable, "Actuator "+id+" is "+string(st), map[string]any{"actuator": id, "state": st})
}

// sequence issues a transition, always de-energizing before energizing.
func (c *Controller) sequence(ctx context.Context, t transition) {
	switch t {
	case closing:
		c.send(ctx, c.cfg.StopSwitch, false)
		c.send(ctx, c.cfg.OpenSwitch, false)
		c.send(ctx, c.cfg.CloseSwitch, true)
	case opening:
		c.send(ctx, c.cfg.StopSwitch, false)
		c.send(ctx, c.cfg.CloseSwitch, false)
		c.send(ctx, c.cfg.OpenSwitch, true)
	case stopping:
		c.send(ctx, c.cfg.CloseSwitch, false)
		c.send(ctx, c.cfg.OpenSwitch, false)
		c.send(ctx, c.cfg.StopSwitch, true)
	}
}

// send dispatches one command; failures are logged, never retried.
func (c *Controller) send(ctx context.Context, id string, on bool) {
	if id == "" {
		return
	}
	if err := c.sw.Send(ctx, id, on, false); err != nil {
		c.log.Errorw("cover_command_failed", "cover", c.cfg.ID, "actuator", id, "on", on, "err", err)
		return
	}
	if on {
		c.observed[id] = actuator.On
	} else {
		c.observed[id] = actuator.Off
	}
}

// halt freezes the estimate and drops the auto-updater.
func (c *Controller) halt() {
	c.cancelPoll()
	c.tc.Stop()
	c.pendingState = true
}

func (c *Controller) nextEpisode() uint64 {
	c.episodes++
	return c.episodes
}

// startPoll replaces any active auto-updater with a fresh one.
func (c *Controller) startPoll() {
	c.cancelPoll()
	id := c.nextEpisode()
	c.poll = &episode{id: id}
	c.poll.cancel = c.sched.Every(c.cfg.PollInterval, func() { c.tick(id) })
	c.pendingState = true
}

func (c *Controller) cancelPoll() {
	if c.poll == nil {
		return
	}
	c.poll.cancel()
	c.poll = nil
}

// cancelCalibration reports whether a run was in flight.
func (c *Controller) cancelCalibration() bool {
	if c.calib == nil {
		return false
	}
	c.calib.cancel()
	c.calib = nil
	c.pendingState = true
	return true
}

// tick is the auto-updater callback.
func (c *Controller) tick(id uint64) {
	c.mu.Lock()
	defer c.unlock()
	if c.poll == nil || c.poll.id != id {
		return
	}
	c.pendingState = true
	if c.calib != nil || !c.tc.PositionReached() {
		// a calibration run ends on its own timer
		return
	}
	c.cancelPoll()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()
	c.sequence(ctx, stopping)
	c.tc.Stop()

	pos := c.tc.CurrentPosition()
	c.log.Debugw("cover_position_reached", "cover", c.cfg.ID, "position", pos)
	c.record(models.EventReached, "Target position reached", map[string]any{"position": pos})
}

// finishCalibration is the deferred end of a calibration run.
func (c *Controller) finishCalibration(id uint64) {
	c.mu.Lock()
	defer c.unlock()
	if c.calib == nil || c.calib.id != id {
		return
	}
	c.calib = nil
	c.cancelPoll()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
	defer cancel()
	_ = c.tc.SetPosition(travel.PositionOpen)
	c.sequence(ctx, stopping)
	c.pendingState = true

	c.log.Infow("cover_calibration_finished", "cover", c.cfg.ID)
	c.record(models.EventReached, "Calibration finished", map[string]any{"position": travel.PositionOpen, "calibration": true})
}

func (c *Controller) record(typ, description string, meta map[string]any) {
	ev := models.CoverEvent{
		OccurredAt:  c.sched.Now().UTC(),
		CoverID:     c.cfg.ID,
		Type:        typ,
		Description: description,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	c.pendingEvents = append(c.pendingEvents, ev)
	c.pendingState = true
}

// unlock releases the mutex and then notifies listeners of what changed.
func (c *Controller) unlock() {
	var (
		snap    models.CoverState
		publish = c.pendingState
		events  = c.pendingEvents
	)
	if publish {
		snap = c.snapshot()
	}
	listeners := append([]func(models.CoverState){}, c.listeners...)
	recorders := append([]func(models.CoverEvent){}, c.recorders...)
	c.pendingState = false
	c.pendingEvents = nil
	c.mu.Unlock()

	for _, ev := range events {
		for _, fn := range recorders {
			fn(ev)
		}
	}
	if publish {
		for _, fn := range listeners {
			fn(snap)
		}
	}
}
