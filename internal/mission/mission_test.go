package mission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skybound/groundctl/internal/flight"
)

// scriptedPhases records which phases ran and aborts at a chosen step.
type scriptedPhases struct {
	ran        []string
	abortAfter string
	state      flight.State
}

func (p *scriptedPhases) step(name string) {
	p.ran = append(p.ran, name)
	if name == p.abortAfter {
		p.state = flight.StateAbort
	}
}

func (p *scriptedPhases) TankOxidizer()         { p.step("tank_oxidizer") }
func (p *scriptedPhases) TankFuel()             { p.step("tank_fuel") }
func (p *scriptedPhases) HeatOxidizer()         { p.step("heat_oxidizer") }
func (p *scriptedPhases) IgnitionSequence()     { p.step("ignition") }
func (p *scriptedPhases) ClimbAndDetectApogee() { p.step("climb") }
func (p *scriptedPhases) DescentAndChute()      { p.step("descent") }
func (p *scriptedPhases) State() flight.State   { return p.state }

func TestRunExecutesAllPhasesInOrder(t *testing.T) {
	p := &scriptedPhases{state: flight.StateLanded}

	final := Run(p)

	assert.Equal(t, flight.StateLanded, final)
	assert.Equal(t, []string{
		"tank_oxidizer", "tank_fuel", "heat_oxidizer",
		"ignition", "climb", "descent",
	}, p.ran)
}

func TestRunStopsAtFirstAbort(t *testing.T) {
	p := &scriptedPhases{abortAfter: "heat_oxidizer"}

	final := Run(p)

	assert.Equal(t, flight.StateAbort, final)
	assert.Equal(t, []string{"tank_oxidizer", "tank_fuel", "heat_oxidizer"}, p.ran,
		"no phase may run after an abort")
}

func TestRunStopsWhenFirstPhaseAborts(t *testing.T) {
	p := &scriptedPhases{abortAfter: "tank_oxidizer"}

	final := Run(p)

	assert.Equal(t, flight.StateAbort, final)
	assert.Equal(t, []string{"tank_oxidizer"}, p.ran)
}
