package flight

// State is the flight sequencing state. Exactly one value is active at a
// time. StateAbort is terminal and absorbing: once entered, no phase may
// leave it or issue further hardware commands.
type State string

const (
	StateIdle             State = "IDLE"
	StateTankingOx        State = "TANKING_OX"
	StateOxReady          State = "OX_READY"
	StateTankingFuel      State = "TANKING_FUEL"
	StateFuelReady        State = "FUEL_READY"
	StateHeating          State = "HEATING"
	StateArmed            State = "ARMED"
	StateIgnitionSequence State = "IGNITION_SEQUENCE"
	StateBoost            State = "BOOST"
	StateAscent           State = "ASCENT"
	// StateCoast is declared for a future unpowered-climb phase; no phase
	// assigns it today.
	StateCoast         State = "COAST"
	StateApogee        State = "APOGEE"
	StateDescent       State = "DESCENT"
	StateChuteDeployed State = "CHUTE_DEPLOYED"
	StateLanded        State = "LANDED"
	StateAbort         State = "ABORT"
)

// AbortReason records why the controller entered StateAbort, so a timed-out
// phase is distinguishable from a safety-threshold violation.
type AbortReason string

const (
	AbortNone          AbortReason = ""
	AbortOverpressure  AbortReason = "tank overpressure"
	AbortIntakesOpen   AbortReason = "intakes open at ignition"
	AbortLowPressure   AbortReason = "pressure below ignition window"
	AbortHighPressure  AbortReason = "pressure above ignition window"
	AbortTimeout       AbortReason = "phase time budget exhausted"
	AbortRequested     AbortReason = "operator abort"
	AbortCommandFailed AbortReason = "actuator command failed"
)
