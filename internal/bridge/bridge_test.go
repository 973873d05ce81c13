package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybound/groundctl/internal/device"
	"github.com/skybound/groundctl/internal/frame"
	"github.com/skybound/groundctl/internal/link"
)

// scriptedChannel plays back a fixed inbound sequence and records every
// outbound frame. Once the script is exhausted, Receive reports timeouts.
type scriptedChannel struct {
	mu      sync.Mutex
	inbound []frame.Frame
	sent    []frame.Frame
}

func (c *scriptedChannel) Send(f frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	return nil
}

func (c *scriptedChannel) Receive() (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return frame.Frame{}, link.ErrTimeout
	}
	f := c.inbound[0]
	c.inbound = c.inbound[1:]
	return f, nil
}

func (c *scriptedChannel) sentFrames() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

func testConfig() *device.Config {
	cfg := &device.Config{}
	cfg.Devices.Servo = map[string]device.Servo{
		"fuel_intake":     {DeviceID: 0, OpenPos: 1200, ClosedPos: 0},
		"oxidizer_intake": {DeviceID: 1, OpenPos: 1200, ClosedPos: 0},
		"fuel_main":       {DeviceID: 2, OpenPos: 1000, ClosedPos: 0},
		"oxidizer_main":   {DeviceID: 3, OpenPos: 1000, ClosedPos: 0},
	}
	cfg.Devices.Relay = map[string]device.Relay{
		"oxidizer_heater": {DeviceID: 0},
		"igniter":         {DeviceID: 1},
		"parachute":       {DeviceID: 2},
	}
	cfg.Devices.Sensor = map[string]device.Sensor{
		"fuel_level":        {DeviceID: 0},
		"oxidizer_level":    {DeviceID: 1},
		"oxidizer_pressure": {DeviceID: 2},
		"altitude":          {DeviceID: 3},
	}
	return cfg
}

func sensorFeed(deviceID uint8, value float32) frame.Frame {
	return frame.Frame{
		Destination: frame.BoardSoftware,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionFeed,
		Source:      frame.BoardRocket,
		DeviceType:  frame.DeviceSensor,
		DeviceID:    deviceID,
		DataType:    frame.DataFloat32,
		Operation:   frame.OpSensorRead,
		Payload:     frame.Float32Payload(value),
	}
}

func servoFeed(deviceID uint8, position int16) frame.Frame {
	return frame.Frame{
		Destination: frame.BoardSoftware,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionFeed,
		Source:      frame.BoardRocket,
		DeviceType:  frame.DeviceServo,
		DeviceID:    deviceID,
		DataType:    frame.DataInt16,
		Operation:   frame.OpServoPosition,
		Payload:     frame.Int16Payload(position),
	}
}

func startBridge(t *testing.T, ch Channel) *Bridge {
	t.Helper()
	b := New(testConfig(), ch)
	b.Start()
	t.Cleanup(func() {
		b.Stop()
		<-b.Done()
	})
	return b
}

func TestRxLoopRoutesSensorFeeds(t *testing.T) {
	ch := &scriptedChannel{inbound: []frame.Frame{
		sensorFeed(2, 58.5), // oxidizer_pressure
		sensorFeed(3, 120.0), // altitude
	}}
	b := startBridge(t, ch)

	assert.Eventually(t, func() bool {
		return b.Read("oxidizer_pressure", 0) == 58.5 && b.Read("altitude", 0) == 120.0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRxLoopRoutesServoPositionFeeds(t *testing.T) {
	ch := &scriptedChannel{inbound: []frame.Frame{
		servoFeed(0, 3), // fuel_intake, near closed
	}}
	b := startBridge(t, ch)

	assert.Eventually(t, func() bool {
		return b.Read("fuel_intake_pos", -1) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, b.ServoIsClosed("fuel_intake"))
}

func TestRxLoopRoutesUnmatchedFramesToAckQueue(t *testing.T) {
	ack := frame.Frame{
		Destination: frame.BoardSoftware,
		Action:      frame.ActionAck,
		Source:      frame.BoardRocket,
		DeviceType:  frame.DeviceRelay,
		DeviceID:    1,
	}
	ch := &scriptedChannel{inbound: []frame.Frame{ack, sensorFeed(0, 10.0)}}
	b := startBridge(t, ch)

	select {
	case got := <-b.Acks():
		assert.Equal(t, ack, got)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the unmatched frame on the ack queue")
	}

	// The feed behind it must still land in telemetry.
	assert.Eventually(t, func() bool {
		return b.Read("fuel_level", 0) == 10.0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRxLoopSurvivesTimeouts(t *testing.T) {
	// An empty script means every Receive reports a timeout.
	ch := &scriptedChannel{}
	b := startBridge(t, ch)

	time.Sleep(50 * time.Millisecond)
	b.Stop()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("rx loop did not exit after Stop")
	}
}

func TestSendServoPosition(t *testing.T) {
	ch := &scriptedChannel{}
	b := New(testConfig(), ch)

	require.NoError(t, b.SendServoPosition("fuel_main", 1000))
	sent := ch.sentFrames()
	require.Len(t, sent, 1)
	assert.Equal(t, frame.ActionService, sent[0].Action)
	assert.Equal(t, frame.DeviceServo, sent[0].DeviceType)
	assert.Equal(t, uint8(2), sent[0].DeviceID)
	assert.Equal(t, frame.OpServoPosition, sent[0].Operation)
	assert.Equal(t, int16(1000), sent[0].Int16())
}

func TestOpenCloseServoUseCalibratedPositions(t *testing.T) {
	ch := &scriptedChannel{}
	b := New(testConfig(), ch)

	require.NoError(t, b.OpenServo("oxidizer_intake"))
	require.NoError(t, b.CloseServo("oxidizer_intake"))
	sent := ch.sentFrames()
	require.Len(t, sent, 2)
	assert.Equal(t, int16(1200), sent[0].Int16())
	assert.Equal(t, int16(0), sent[1].Int16())
}

func TestSendRelayOperations(t *testing.T) {
	ch := &scriptedChannel{}
	b := New(testConfig(), ch)

	require.NoError(t, b.SendRelay("igniter", true))
	require.NoError(t, b.SendRelay("igniter", false))
	sent := ch.sentFrames()
	require.Len(t, sent, 2)
	assert.Equal(t, frame.OpRelayOpen, sent[0].Operation)
	assert.Equal(t, frame.OpRelayClose, sent[1].Operation)
	assert.Equal(t, frame.DeviceRelay, sent[0].DeviceType)
	assert.Equal(t, uint8(1), sent[0].DeviceID)
}

func TestUnknownDeviceNamesFailFast(t *testing.T) {
	ch := &scriptedChannel{}
	b := New(testConfig(), ch)

	assert.ErrorIs(t, b.SendServoPosition("vent_valve", 10), device.ErrUnknownDevice)
	assert.ErrorIs(t, b.OpenServo("vent_valve"), device.ErrUnknownDevice)
	assert.ErrorIs(t, b.SendRelay("strobe", true), device.ErrUnknownDevice)
	assert.Empty(t, ch.sentFrames(), "no frame may go out for an unknown device")
}

func TestReadReturnsDefaultWhenMissingOrUncoercible(t *testing.T) {
	ch := &scriptedChannel{}
	b := New(testConfig(), ch)

	assert.Equal(t, 7.5, b.Read("oxidizer_pressure", 7.5))
}

func TestServoIsClosedFailsClosed(t *testing.T) {
	ch := &scriptedChannel{inbound: []frame.Frame{
		servoFeed(1, 20), // oxidizer_intake, 20 units off its closed target
	}}
	b := startBridge(t, ch)

	// No feed ever arrived for fuel_intake: unknown position is not closed.
	assert.False(t, b.ServoIsClosed("fuel_intake"))

	assert.Eventually(t, func() bool {
		return b.Read("oxidizer_intake_pos", -1) == 20
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, b.ServoIsClosed("oxidizer_intake"))
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 61.0, 61.0, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 950, 950.0, true},
		{"int16", int16(-3), -3.0, true},
		{"numeric string", "88.25", 88.25, true},
		{"garbage string", "n/a", 0, false},
		{"wrong shape", []byte{1, 2}, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceFloat(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
