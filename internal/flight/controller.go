// Package flight implements the launch sequencing state machine: propellant
// loading, oxidizer conditioning, ignition, ascent and apogee detection, and
// descent with parachute deployment.
package flight

import (
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Safety thresholds and windows. These are flight constants, not tunables.
const (
	fullLevelPercent   = 100.0
	heatWindowLowBar   = 55.0
	heatWindowHighBar  = 65.0
	overpressureBar    = 90.0
	ignitionMinBar     = 40.0
	ignitionMaxBar     = 65.0
	climbArmDeltaM     = 1.0
	deploySpeedMaxMS   = 30.0
	deployAltitudeMaxM = 200.0
	deployFailsafe     = 9 * time.Second
	lowApogeeM         = 5.0
	landedDeltaM       = 0.5
)

// Vehicle is what the controller needs from the vehicle bridge: latest
// telemetry reads and named actuator commands.
type Vehicle interface {
	OpenServo(name string) error
	CloseServo(name string) error
	SendRelay(name string, on bool) error
	Read(key string, def float64) float64
	ServoIsClosed(name string) bool
}

// Config tunes polling pacing and the per-phase time budgets. Zero fields
// take the defaults.
type Config struct {
	FillPollInterval    time.Duration // propellant level polls
	HeatPollInterval    time.Duration // oxidizer pressure polls
	ValveStagger        time.Duration // spacing of main valve openings and igniter enable
	AscentPollInterval  time.Duration // altitude polls during ascent
	DescentPollInterval time.Duration // pacing between deploy checks
	SpeedSampleWindow   time.Duration // window of the two-sample vertical speed estimate
	LandingSampleGap    time.Duration // spacing of the two landing altitude samples

	// Time budgets for the waits that depend on the vehicle making
	// progress. A starved wait aborts with AbortTimeout instead of hanging
	// the mission.
	FillBudget   time.Duration // per tank
	HeatBudget   time.Duration
	AscentBudget time.Duration // covers the climb-confirmation wait

	Clock   Clock       // nil means the wall clock
	OnState func(State) // optional hook, called after every transition
}

// DefaultConfig returns the flight-proven pacing.
func DefaultConfig() Config {
	return Config{
		FillPollInterval:    200 * time.Millisecond,
		HeatPollInterval:    200 * time.Millisecond,
		ValveStagger:        200 * time.Millisecond,
		AscentPollInterval:  500 * time.Millisecond,
		DescentPollInterval: 500 * time.Millisecond,
		SpeedSampleWindow:   500 * time.Millisecond,
		LandingSampleGap:    1 * time.Second,
		FillBudget:          5 * time.Minute,
		HeatBudget:          5 * time.Minute,
		AscentBudget:        10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FillPollInterval == 0 {
		c.FillPollInterval = def.FillPollInterval
	}
	if c.HeatPollInterval == 0 {
		c.HeatPollInterval = def.HeatPollInterval
	}
	if c.ValveStagger == 0 {
		c.ValveStagger = def.ValveStagger
	}
	if c.AscentPollInterval == 0 {
		c.AscentPollInterval = def.AscentPollInterval
	}
	if c.DescentPollInterval == 0 {
		c.DescentPollInterval = def.DescentPollInterval
	}
	if c.SpeedSampleWindow == 0 {
		c.SpeedSampleWindow = def.SpeedSampleWindow
	}
	if c.LandingSampleGap == 0 {
		c.LandingSampleGap = def.LandingSampleGap
	}
	if c.FillBudget == 0 {
		c.FillBudget = def.FillBudget
	}
	if c.HeatBudget == 0 {
		c.HeatBudget = def.HeatBudget
	}
	if c.AscentBudget == 0 {
		c.AscentBudget = def.AscentBudget
	}
	if c.Clock == nil {
		c.Clock = WallClock()
	}
}

// Controller is the flight phase state machine. Phase methods assume they
// are invoked in mission order; safety violations are communicated by a
// transition to StateAbort, never by a returned error or panic, so callers
// must check State after every phase.
type Controller struct {
	v   Vehicle
	cfg Config

	mu          sync.Mutex
	state       State
	abortReason AbortReason
	apogeeAlt   float64
	apogeeTime  time.Time
	apogeeSet   bool
	landed      bool

	abortRequested atomic.Bool
}

func New(v Vehicle, cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{v: v, cfg: cfg, state: StateIdle}
}

// State returns the current flight state. Safe from any goroutine.
func (fc *Controller) State() State {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.state
}

// AbortReason returns why the controller aborted, or AbortNone.
func (fc *Controller) AbortReason() AbortReason {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.abortReason
}

// Apogee returns the recorded apogee altitude and time. ok is false until
// the apogee transition has happened.
func (fc *Controller) Apogee() (alt float64, at time.Time, ok bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.apogeeAlt, fc.apogeeTime, fc.apogeeSet
}

// Landed reports whether the landing transition has happened.
func (fc *Controller) Landed() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.landed
}

// RequestAbort asks the controller to abort at its next poll. Safe from any
// goroutine; the operator console uses it.
func (fc *Controller) RequestAbort() {
	fc.abortRequested.Store(true)
}

// setState transitions to s unless the controller has already aborted.
// StateAbort is absorbing, so even a misordered phase call cannot leave it.
func (fc *Controller) setState(s State) {
	fc.mu.Lock()
	if fc.state == StateAbort {
		fc.mu.Unlock()
		return
	}
	fc.state = s
	fc.mu.Unlock()
	if fc.cfg.OnState != nil {
		fc.cfg.OnState(s)
	}
}

func (fc *Controller) abort(reason AbortReason) {
	fc.mu.Lock()
	if fc.state == StateAbort {
		fc.mu.Unlock()
		return
	}
	fc.state = StateAbort
	fc.abortReason = reason
	fc.mu.Unlock()
	if fc.cfg.OnState != nil {
		fc.cfg.OnState(StateAbort)
	}
}

// externalAbort honors a pending operator abort. Every polling loop checks
// it once per iteration.
func (fc *Controller) externalAbort() bool {
	if !fc.abortRequested.Load() {
		return false
	}
	log.Printf("[ABORT] operator abort requested\n")
	fc.abort(AbortRequested)
	return true
}

func (fc *Controller) commandFailed(what string, err error) {
	log.Printf("[ABORT] %s: %v\n", what, err)
	fc.abort(AbortCommandFailed)
}

func (fc *Controller) fuelLevel() float64        { return fc.v.Read("fuel_level", 0) }
func (fc *Controller) oxidizerLevel() float64    { return fc.v.Read("oxidizer_level", 0) }
func (fc *Controller) oxidizerPressure() float64 { return fc.v.Read("oxidizer_pressure", 0) }
func (fc *Controller) altitude() float64         { return fc.v.Read("altitude", 0) }

// verticalSpeed estimates vertical velocity in m/s by sampling altitude at
// the start and end of a fixed window. The call blocks for the whole window;
// it is not a continuously maintained rate.
func (fc *Controller) verticalSpeed(window time.Duration) float64 {
	h1 := fc.altitude()
	t1 := fc.cfg.Clock.Now()
	fc.cfg.Clock.Sleep(window)
	h2 := fc.altitude()
	elapsed := fc.cfg.Clock.Now().Sub(t1).Seconds()
	if elapsed < 1e-6 {
		elapsed = 1e-6
	}
	return (h2 - h1) / elapsed
}

// TankOxidizer loads the oxidizer tank: open the intake, wait for the level
// to reach 100%, close the intake.
func (fc *Controller) TankOxidizer() {
	fc.tankPropellant("oxidizer", StateTankingOx, StateOxReady, "oxidizer_intake", fc.oxidizerLevel)
	if fc.State() == StateOxReady {
		log.Printf("[INFO] after oxidizer fill: oxidizer_pressure=%.1f bar\n", fc.oxidizerPressure())
	}
}

// TankFuel loads the fuel tank the same way.
func (fc *Controller) TankFuel() {
	fc.tankPropellant("fuel", StateTankingFuel, StateFuelReady, "fuel_intake", fc.fuelLevel)
}

func (fc *Controller) tankPropellant(what string, active, next State, intake string, level func() float64) {
	if fc.State() == StateAbort {
		return
	}
	fc.setState(active)
	log.Printf("[SEQ] %s loading: opening %s\n", what, intake)

	if err := fc.v.OpenServo(intake); err != nil {
		fc.commandFailed("open "+intake, err)
		return
	}

	deadline := fc.cfg.Clock.Now().Add(fc.cfg.FillBudget)
	for level() < fullLevelPercent {
		if fc.externalAbort() {
			return
		}
		if fc.cfg.Clock.Now().After(deadline) {
			log.Printf("[ABORT] %s level never reached %.0f%%, budget exhausted\n", what, fullLevelPercent)
			fc.abort(AbortTimeout)
			return
		}
		fc.cfg.Clock.Sleep(fc.cfg.FillPollInterval)
	}

	log.Printf("[SEQ] %s 100%%, closing %s\n", what, intake)
	if err := fc.v.CloseServo(intake); err != nil {
		fc.commandFailed("close "+intake, err)
		return
	}
	fc.setState(next)
}

// HeatOxidizer warms the oxidizer tank until pressure enters the ignition
// window, aborting on overpressure. The heater relay is switched off on
// every exit path.
func (fc *Controller) HeatOxidizer() {
	if fc.State() == StateAbort {
		return
	}
	fc.setState(StateHeating)
	log.Printf("[SEQ] oxidizer heating: turning on oxidizer_heater\n")

	if err := fc.v.SendRelay("oxidizer_heater", true); err != nil {
		fc.commandFailed("oxidizer_heater on", err)
		return
	}

	deadline := fc.cfg.Clock.Now().Add(fc.cfg.HeatBudget)
	for {
		if fc.externalAbort() {
			break
		}
		p := fc.oxidizerPressure()
		log.Printf("[HEAT] pressure=%.1f bar\n", p)

		if p >= heatWindowLowBar && p <= heatWindowHighBar {
			log.Printf("[HEAT] ignition window reached (%.0f-%.0f bar)\n", heatWindowLowBar, heatWindowHighBar)
			break
		}
		if p >= overpressureBar {
			log.Printf("[ABORT] pressure >=%.0f bar, tank explosion hazard\n", overpressureBar)
			fc.abort(AbortOverpressure)
			break
		}
		if fc.cfg.Clock.Now().After(deadline) {
			log.Printf("[ABORT] heating budget exhausted before ignition window\n")
			fc.abort(AbortTimeout)
			break
		}
		fc.cfg.Clock.Sleep(fc.cfg.HeatPollInterval)
	}

	log.Printf("[SEQ] turning off oxidizer heater\n")
	if err := fc.v.SendRelay("oxidizer_heater", false); err != nil {
		// The heater must not stay energized; there is nothing more the
		// sequencer can do here than report it.
		log.Printf("[SEQ] oxidizer_heater off failed: %v\n", err)
	}

	if fc.State() != StateAbort {
		fc.setState(StateArmed)
		log.Printf("[SEQ] vehicle ARMED\n")
	}
}

// IgnitionSequence opens the main valves and enables the igniter, provided
// both intakes read closed and tank pressure sits inside the ignition
// window. The fuel main opens first, the oxidizer main one stagger later,
// the igniter only after both: that ordering is a hard safety contract.
func (fc *Controller) IgnitionSequence() {
	if fc.State() == StateAbort {
		return
	}
	fc.setState(StateIgnitionSequence)
	log.Printf("[IGN] ignition sequence start\n")

	if fc.externalAbort() {
		return
	}

	if !fc.v.ServoIsClosed("fuel_intake") || !fc.v.ServoIsClosed("oxidizer_intake") {
		log.Printf("[ABORT] intakes are not closed at ignition\n")
		fc.abort(AbortIntakesOpen)
		return
	}

	p := fc.oxidizerPressure()
	log.Printf("[IGN] oxidizer pressure = %.1f bar\n", p)

	if p < ignitionMinBar {
		log.Printf("[IGN] pressure too low (<%.0f bar), engine will not ignite\n", ignitionMinBar)
		fc.abort(AbortLowPressure)
		return
	}
	if p > ignitionMaxBar {
		log.Printf("[IGN] pressure too high (>%.0f bar), engine explosion hazard\n", ignitionMaxBar)
		fc.abort(AbortHighPressure)
		return
	}

	log.Printf("[IGN] opening fuel_main\n")
	if err := fc.v.OpenServo("fuel_main"); err != nil {
		fc.commandFailed("open fuel_main", err)
		return
	}
	fc.cfg.Clock.Sleep(fc.cfg.ValveStagger)

	log.Printf("[IGN] opening oxidizer_main\n")
	if err := fc.v.OpenServo("oxidizer_main"); err != nil {
		fc.commandFailed("open oxidizer_main", err)
		return
	}
	fc.cfg.Clock.Sleep(fc.cfg.ValveStagger)

	log.Printf("[IGN] enabling igniter\n")
	if err := fc.v.SendRelay("igniter", true); err != nil {
		fc.commandFailed("igniter on", err)
		return
	}

	fc.setState(StateBoost)
	log.Printf("[IGN] engine ignited, BOOST\n")
}

// ClimbAndDetectApogee waits for a confirmed climb, then declares apogee on
// the first altitude sample lower than the previous one. The confirmation
// step keeps launch-pad jitter from tripping the first-decrease rule before
// genuine ascent.
func (fc *Controller) ClimbAndDetectApogee() {
	if fc.State() == StateAbort {
		return
	}
	fc.setState(StateAscent)
	log.Printf("[FLIGHT] ascent, waiting for confirmed altitude gain\n")

	startAlt := fc.altitude()
	deadline := fc.cfg.Clock.Now().Add(fc.cfg.AscentBudget)
	for {
		if fc.externalAbort() {
			return
		}
		fc.cfg.Clock.Sleep(fc.cfg.AscentPollInterval)
		altNow := fc.altitude()
		log.Printf("[FLIGHT] alt=%.1f m (arming apogee logic)\n", altNow)
		if altNow-startAlt > climbArmDeltaM {
			break
		}
		if fc.cfg.Clock.Now().After(deadline) {
			log.Printf("[ABORT] no confirmed climb within budget\n")
			fc.abort(AbortTimeout)
			return
		}
	}

	lastAlt := fc.altitude()
	for {
		if fc.externalAbort() {
			return
		}
		fc.cfg.Clock.Sleep(fc.cfg.AscentPollInterval)
		altNow := fc.altitude()
		log.Printf("[FLIGHT] alt=%.1f m (tracking climb)\n", altNow)

		if altNow < lastAlt {
			fc.mu.Lock()
			fc.apogeeAlt = lastAlt
			fc.apogeeTime = fc.cfg.Clock.Now()
			fc.apogeeSet = true
			fc.mu.Unlock()
			fc.setState(StateApogee)
			log.Printf("[FLIGHT] APOGEE, alt_max=%.1f m\n", lastAlt)
			return
		}
		lastAlt = altNow
	}
}

// DescentAndChute deploys the parachute once the vehicle is low and slow
// enough, or unconditionally after the failsafe window since apogee, then
// watches for a stable altitude to declare landing. A very low apogee skips
// straight to landed.
func (fc *Controller) DescentAndChute() {
	if fc.State() == StateAbort {
		return
	}

	fc.mu.Lock()
	apogeeAlt := fc.apogeeAlt
	apogeeTime := fc.apogeeTime
	fc.mu.Unlock()

	if apogeeAlt < lowApogeeM {
		log.Printf("[DESCENT] apogee very low (<%.0f m), skipping chute logic\n", lowApogeeM)
		fc.setState(StateLanded)
		fc.mu.Lock()
		fc.landed = true
		fc.mu.Unlock()
		log.Printf("[LANDING] landing complete (low flight)\n")
		return
	}

	fc.setState(StateDescent)
	log.Printf("[DESCENT] descent, preparing for parachute\n")

	for {
		if fc.externalAbort() {
			return
		}
		vDown := math.Abs(fc.verticalSpeed(fc.cfg.SpeedSampleWindow))
		altNow := fc.altitude()
		sinceApogee := fc.cfg.Clock.Now().Sub(apogeeTime)
		log.Printf("[DESCENT] alt=%.1fm |v|=%.1fm/s since_apogee=%.1fs\n",
			altNow, vDown, sinceApogee.Seconds())

		lowEnough := altNow < deployAltitudeMaxM
		safeSpeed := vDown <= deploySpeedMaxMS
		failsafe := sinceApogee > deployFailsafe

		if (safeSpeed && lowEnough) || failsafe {
			log.Printf("[DESCENT] deploying parachute\n")
			if err := fc.v.SendRelay("parachute", true); err != nil {
				fc.commandFailed("parachute", err)
				return
			}
			fc.setState(StateChuteDeployed)
			break
		}
		fc.cfg.Clock.Sleep(fc.cfg.DescentPollInterval)
	}

	for {
		if fc.externalAbort() {
			return
		}
		alt1 := fc.altitude()
		fc.cfg.Clock.Sleep(fc.cfg.LandingSampleGap)
		alt2 := fc.altitude()
		if math.Abs(alt2-alt1) < landedDeltaM {
			fc.setState(StateLanded)
			fc.mu.Lock()
			fc.landed = true
			fc.mu.Unlock()
			log.Printf("[LANDING] landing complete\n")
			return
		}
	}
}
