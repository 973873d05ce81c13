// Package simvehicle implements a bench rocket: a TCP server speaking the
// ground frame protocol. It applies SERVICE commands to simulated devices,
// streams FEED telemetry for every configured sensor and servo, and answers
// each command with an ACK so the ground side's out-of-band queue sees
// traffic. An optional pad/flight model makes full mission rehearsals
// possible without hardware.
package simvehicle

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/skybound/groundctl/internal/device"
	"github.com/skybound/groundctl/internal/frame"
	"github.com/skybound/groundctl/internal/link"
)

// Pad/flight model constants. Deliberately generous rates so a simulated
// mission runs in tens of seconds.
const (
	fillRatePerSec     = 12.0  // tank percent per second with the intake open
	heatRatePerSec     = 4.0   // bar per second with the heater on
	coolRatePerSec     = 0.5   // bar per second decay with the heater off
	ambientPressureBar = 20.0
	boostSpeedMS       = 85.0 // initial vertical speed at ignition
	gravityMS2         = 9.81
	chuteDescentMS     = 8.0
)

// Vehicle is the simulated rocket. Create with New, then Listen and Serve.
type Vehicle struct {
	cfg          *device.Config
	feedInterval time.Duration

	servoByID map[uint8]string
	relayByID map[uint8]string

	mu       sync.Mutex
	servoPos map[string]int
	relayOn  map[string]bool
	sensors  map[string]float64
	physics  bool
	flying   bool
	vertical float64 // m/s, physics model only

	ln net.Listener
}

// New builds a vehicle from the same device map the ground side uses. All
// servos start at their closed position, relays off, sensors at zero (except
// oxidizer pressure, which sits at ambient).
func New(cfg *device.Config, feedInterval time.Duration) *Vehicle {
	v := &Vehicle{
		cfg:          cfg,
		feedInterval: feedInterval,
		servoByID:    make(map[uint8]string),
		relayByID:    make(map[uint8]string),
		servoPos:     make(map[string]int),
		relayOn:      make(map[string]bool),
		sensors:      make(map[string]float64),
	}
	for name, s := range cfg.Devices.Servo {
		v.servoByID[s.DeviceID] = name
		v.servoPos[name] = s.ClosedPos
	}
	for name, r := range cfg.Devices.Relay {
		v.relayByID[r.DeviceID] = name
	}
	for name := range cfg.Devices.Sensor {
		v.sensors[name] = 0
	}
	v.sensors["oxidizer_pressure"] = ambientPressureBar
	return v
}

// EnablePhysics switches on the pad/flight model: tanks fill while intakes
// are open, pressure tracks the heater, and ignition starts a ballistic
// climb. Without it, sensors only change through SetSensor.
func (v *Vehicle) EnablePhysics() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.physics = true
}

// SetSensor sets a sensor reading directly. Tests drive the vehicle this
// way instead of through the physics model.
func (v *Vehicle) SetSensor(name string, value float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sensors[name] = value
}

// ServoPosition returns the current commanded position of a servo.
func (v *Vehicle) ServoPosition(name string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.servoPos[name]
}

// RelayOn reports whether the named relay is energized.
func (v *Vehicle) RelayOn(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.relayOn[name]
}

// Listen binds the TCP listener. Use addr "127.0.0.1:0" to pick a free
// port; Addr reports the bound address.
func (v *Vehicle) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("simvehicle: listen %s: %w", addr, err)
	}
	v.ln = ln
	return nil
}

// Addr returns the bound listen address.
func (v *Vehicle) Addr() string {
	return v.ln.Addr().String()
}

// Serve accepts ground connections one at a time until the listener is
// closed.
func (v *Vehicle) Serve() {
	for {
		conn, err := v.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Printf("[SIM] accept: %v\n", err)
			}
			return
		}
		log.Printf("[SIM] ground connected from %s\n", conn.RemoteAddr())
		v.handleConn(conn)
	}
}

// Close shuts the listener down. The current connection, if any, ends when
// the ground side disconnects.
func (v *Vehicle) Close() {
	if v.ln != nil {
		v.ln.Close()
	}
}

func (v *Vehicle) handleConn(conn net.Conn) {
	defer conn.Close()
	l := link.New(conn)
	l.SetReceiveTimeout(v.feedInterval / 2)

	lastFeed := time.Now()
	for {
		f, err := l.Receive()
		switch {
		case err == nil:
			v.applyCommand(l, f)
		case errors.Is(err, link.ErrTimeout):
			// Idle; fall through to the feed tick.
		default:
			log.Printf("[SIM] ground disconnected: %v\n", err)
			return
		}

		if elapsed := time.Since(lastFeed); elapsed >= v.feedInterval {
			v.step(elapsed.Seconds())
			if err := v.sendFeeds(l); err != nil {
				log.Printf("[SIM] feed send failed: %v\n", err)
				return
			}
			lastFeed = time.Now()
		}
	}
}

func (v *Vehicle) applyCommand(l *link.Link, f frame.Frame) {
	if f.Action != frame.ActionService {
		return
	}

	v.mu.Lock()
	switch {
	case f.DeviceType == frame.DeviceServo && f.Operation == frame.OpServoPosition:
		if name, ok := v.servoByID[f.DeviceID]; ok {
			v.servoPos[name] = int(f.Int16())
			log.Printf("[SIM] servo %s -> %d\n", name, f.Int16())
		}
	case f.DeviceType == frame.DeviceRelay:
		if name, ok := v.relayByID[f.DeviceID]; ok {
			v.relayOn[name] = f.Operation == frame.OpRelayOpen
			log.Printf("[SIM] relay %s -> %v\n", name, v.relayOn[name])
		}
	}
	v.mu.Unlock()

	// Every command is acknowledged; the ground side parks these on its
	// out-of-band queue.
	ack := frame.Frame{
		Destination: frame.BoardSoftware,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionAck,
		Source:      frame.BoardRocket,
		DeviceType:  f.DeviceType,
		DeviceID:    f.DeviceID,
		DataType:    frame.DataNone,
		Operation:   f.Operation,
	}
	if err := l.Send(ack); err != nil {
		log.Printf("[SIM] ack send failed: %v\n", err)
	}
}

// step advances the pad/flight model by dt seconds.
func (v *Vehicle) step(dt float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.physics {
		return
	}

	if v.servoOpen("oxidizer_intake") {
		v.sensors["oxidizer_level"] = min(100, v.sensors["oxidizer_level"]+fillRatePerSec*dt)
	}
	if v.servoOpen("fuel_intake") {
		v.sensors["fuel_level"] = min(100, v.sensors["fuel_level"]+fillRatePerSec*dt)
	}

	if v.relayOn["oxidizer_heater"] {
		v.sensors["oxidizer_pressure"] += heatRatePerSec * dt
	} else if v.sensors["oxidizer_pressure"] > ambientPressureBar {
		v.sensors["oxidizer_pressure"] -= coolRatePerSec * dt
	}

	if !v.flying && v.relayOn["igniter"] && v.servoOpen("fuel_main") && v.servoOpen("oxidizer_main") {
		v.flying = true
		v.vertical = boostSpeedMS
		log.Printf("[SIM] ignition, liftoff\n")
	}

	if v.flying {
		if v.relayOn["parachute"] {
			v.vertical = -chuteDescentMS
		} else {
			v.vertical -= gravityMS2 * dt
		}
		alt := v.sensors["altitude"] + v.vertical*dt
		if alt <= 0 {
			alt = 0
			v.flying = false
			v.vertical = 0
			log.Printf("[SIM] touchdown\n")
		}
		v.sensors["altitude"] = alt
	}
}

// servoOpen treats anything away from the closed calibration point as open.
// Callers hold v.mu.
func (v *Vehicle) servoOpen(name string) bool {
	s, ok := v.cfg.Devices.Servo[name]
	if !ok {
		return false
	}
	diff := v.servoPos[name] - s.ClosedPos
	if diff < 0 {
		diff = -diff
	}
	return diff >= 5
}

func (v *Vehicle) sendFeeds(l *link.Link) error {
	v.mu.Lock()
	feeds := make([]frame.Frame, 0, len(v.sensors)+len(v.servoPos))
	for name, s := range v.cfg.Devices.Sensor {
		feeds = append(feeds, frame.Frame{
			Destination: frame.BoardSoftware,
			Priority:    frame.PriorityLow,
			Action:      frame.ActionFeed,
			Source:      frame.BoardRocket,
			DeviceType:  frame.DeviceSensor,
			DeviceID:    s.DeviceID,
			DataType:    frame.DataFloat32,
			Operation:   frame.OpSensorRead,
			Payload:     frame.Float32Payload(float32(v.sensors[name])),
		})
	}
	for name, s := range v.cfg.Devices.Servo {
		feeds = append(feeds, frame.Frame{
			Destination: frame.BoardSoftware,
			Priority:    frame.PriorityLow,
			Action:      frame.ActionFeed,
			Source:      frame.BoardRocket,
			DeviceType:  frame.DeviceServo,
			DeviceID:    s.DeviceID,
			DataType:    frame.DataInt16,
			Operation:   frame.OpServoPosition,
			Payload:     frame.Int16Payload(int16(v.servoPos[name])),
		})
	}
	v.mu.Unlock()

	for _, f := range feeds {
		if err := l.Send(f); err != nil {
			return err
		}
	}
	return nil
}
