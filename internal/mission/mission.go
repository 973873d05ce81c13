// Package mission runs the launch phases in order, stopping at the first
// abort.
package mission

import (
	"log"

	"github.com/skybound/groundctl/internal/flight"
)

// Phases is the controller surface the driver runs.
type Phases interface {
	TankOxidizer()
	TankFuel()
	HeatOxidizer()
	IgnitionSequence()
	ClimbAndDetectApogee()
	DescentAndChute()
	State() flight.State
}

// Run executes the full automated mission and returns the final state. After
// any phase leaves the controller aborted, later phases do not run; abort is
// communicated through state, so Run checks it after every step.
func Run(fc Phases) flight.State {
	steps := []struct {
		name string
		run  func()
	}{
		{"TANK OXIDIZER", fc.TankOxidizer},
		{"TANK FUEL", fc.TankFuel},
		{"HEAT OXIDIZER", fc.HeatOxidizer},
		{"IGNITION", fc.IgnitionSequence},
		{"CLIMB & APOGEE", fc.ClimbAndDetectApogee},
		{"DESCENT & CHUTE", fc.DescentAndChute},
	}

	for i, step := range steps {
		log.Printf("=== [STEP %d] %s ===\n", i+1, step.name)
		step.run()
		if fc.State() == flight.StateAbort {
			log.Printf("[MISSION] aborted during %s\n", step.name)
			return flight.StateAbort
		}
	}
	return fc.State()
}
