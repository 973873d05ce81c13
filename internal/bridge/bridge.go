// Package bridge connects the named servo/relay/sensor vocabulary used by
// the flight controller to the raw frame channel. It owns the telemetry
// store and the background receive loop that keeps it current.
package bridge

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/skybound/groundctl/internal/device"
	"github.com/skybound/groundctl/internal/frame"
	"github.com/skybound/groundctl/internal/link"
	"github.com/skybound/groundctl/internal/telemetry"
)

// Channel is the transport contract the bridge depends on. link.Link
// implements it over TCP; tests use scripted channels. Receive must return
// an error matching link.ErrTimeout when the bounded wait elapses with
// nothing inbound.
type Channel interface {
	Send(frame.Frame) error
	Receive() (frame.Frame, error)
}

// ServoClosedTolerance is the band, in raw servo units, within which a
// position reading counts as "at the closed position".
const ServoClosedTolerance = 5.0

// idleDelay is the short yield between receive iterations so the loop never
// monopolizes a core on a hot channel.
const idleDelay = 10 * time.Millisecond

// ackQueueDepth bounds the out-of-band queue for frames matching no feed
// pattern (ACK/NACK traffic). Overflow drops the newest frame with a log
// line.
const ackQueueDepth = 64

type feedKey struct {
	deviceType uint8
	deviceID   uint8
	operation  uint8
}

// Bridge turns named-device requests into SERVICE frames and routes inbound
// FEED frames into the telemetry store. Commands are fire-and-forget: Send
// methods return once the frame is handed to the channel.
type Bridge struct {
	cfg   *device.Config
	ch    Channel
	store *telemetry.Store

	feeds map[feedKey]string // registered feed pattern -> telemetry key
	acks  chan frame.Frame

	stopped atomic.Bool
	done    chan struct{}
}

// New builds a bridge over ch using the device map cfg. Feed patterns are
// registered for every configured sensor (telemetry key = sensor name) and
// every servo position feed (telemetry key = servo name + "_pos").
func New(cfg *device.Config, ch Channel) *Bridge {
	b := &Bridge{
		cfg:   cfg,
		ch:    ch,
		store: telemetry.NewStore(),
		feeds: make(map[feedKey]string),
		acks:  make(chan frame.Frame, ackQueueDepth),
		done:  make(chan struct{}),
	}
	for name, s := range cfg.Devices.Sensor {
		b.feeds[feedKey{frame.DeviceSensor, s.DeviceID, frame.OpSensorRead}] = name
	}
	for name, s := range cfg.Devices.Servo {
		b.feeds[feedKey{frame.DeviceServo, s.DeviceID, frame.OpServoPosition}] = name + "_pos"
	}
	return b
}

// Start launches the background receive loop.
func (b *Bridge) Start() {
	go b.rxLoop()
}

// Stop requests the receive loop to exit after its current iteration. It
// does not interrupt an in-flight receive; wait on Done for a hard join.
func (b *Bridge) Stop() {
	b.stopped.Store(true)
}

// Done is closed once the receive loop has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// SendServoPosition commands the named servo to a raw position.
func (b *Bridge) SendServoPosition(name string, position int) error {
	s, ok := b.cfg.Devices.Servo[name]
	if !ok {
		return fmt.Errorf("%w: servo %q", device.ErrUnknownDevice, name)
	}
	return b.ch.Send(frame.Frame{
		Destination: frame.BoardRocket,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionService,
		Source:      frame.BoardSoftware,
		DeviceType:  frame.DeviceServo,
		DeviceID:    s.DeviceID,
		DataType:    frame.DataInt16,
		Operation:   frame.OpServoPosition,
		Payload:     frame.Int16Payload(int16(position)),
	})
}

// OpenServo drives the named servo to its calibrated open position.
func (b *Bridge) OpenServo(name string) error {
	s, ok := b.cfg.Devices.Servo[name]
	if !ok {
		return fmt.Errorf("%w: servo %q", device.ErrUnknownDevice, name)
	}
	return b.SendServoPosition(name, s.OpenPos)
}

// CloseServo drives the named servo to its calibrated closed position.
func (b *Bridge) CloseServo(name string) error {
	s, ok := b.cfg.Devices.Servo[name]
	if !ok {
		return fmt.Errorf("%w: servo %q", device.ErrUnknownDevice, name)
	}
	return b.SendServoPosition(name, s.ClosedPos)
}

// SendRelay switches the named relay on or off.
func (b *Bridge) SendRelay(name string, on bool) error {
	r, ok := b.cfg.Devices.Relay[name]
	if !ok {
		return fmt.Errorf("%w: relay %q", device.ErrUnknownDevice, name)
	}
	op := frame.OpRelayClose
	if on {
		op = frame.OpRelayOpen
	}
	return b.ch.Send(frame.Frame{
		Destination: frame.BoardRocket,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionService,
		Source:      frame.BoardSoftware,
		DeviceType:  frame.DeviceRelay,
		DeviceID:    r.DeviceID,
		DataType:    frame.DataNone,
		Operation:   op,
	})
}

// Read returns the latest telemetry value for key coerced to float64, or
// def when the key is missing or the stored value has the wrong shape. A
// momentary bad reading must not crash mission polling, so coercion
// failures are absorbed here and never propagate.
func (b *Bridge) Read(key string, def float64) float64 {
	v := b.store.Get(key, nil)
	if v == nil {
		return def
	}
	f, ok := coerceFloat(v)
	if !ok {
		return def
	}
	return f
}

// ServoIsClosed reports whether the last position feed for the named servo
// is within ServoClosedTolerance of its calibrated closed position. A servo
// with no position feed yet reads as not closed.
func (b *Bridge) ServoIsClosed(name string) bool {
	s, ok := b.cfg.Devices.Servo[name]
	if !ok {
		return false
	}
	v := b.store.Get(name+"_pos", nil)
	if v == nil {
		return false
	}
	pos, ok := coerceFloat(v)
	if !ok {
		return false
	}
	return math.Abs(pos-float64(s.ClosedPos)) < ServoClosedTolerance
}

// Snapshot returns an independent copy of all current telemetry.
func (b *Bridge) Snapshot() map[string]any {
	return b.store.Snapshot()
}

// Acks exposes inbound frames that matched no feed pattern, for out-of-band
// ACK/NACK correlation. The bridge itself never interprets them.
func (b *Bridge) Acks() <-chan frame.Frame {
	return b.acks
}

func (b *Bridge) rxLoop() {
	defer close(b.done)
	for !b.stopped.Load() {
		f, err := b.ch.Receive()
		switch {
		case err == nil:
			b.route(f)
		case errors.Is(err, link.ErrTimeout):
			// Expected idle tick; nothing arrived within the bounded wait.
		default:
			log.Printf("[RX] receive error: %v\n", err)
		}
		time.Sleep(idleDelay)
	}
}

func (b *Bridge) route(f frame.Frame) {
	if f.Action == frame.ActionFeed {
		if key, ok := b.feeds[feedKey{f.DeviceType, f.DeviceID, f.Operation}]; ok {
			b.store.Update(key, f.Value())
			return
		}
	}
	select {
	case b.acks <- f:
	default:
		log.Printf("[RX] ack queue full, dropping frame (action %d, device type %d, id %d)\n",
			f.Action, f.DeviceType, f.DeviceID)
	}
}

func coerceFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int16:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
