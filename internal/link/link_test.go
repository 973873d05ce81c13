package link

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybound/groundctl/internal/frame"
)

func testFrame(deviceID uint8) frame.Frame {
	return frame.Frame{
		Destination: frame.BoardSoftware,
		Priority:    frame.PriorityLow,
		Action:      frame.ActionFeed,
		Source:      frame.BoardRocket,
		DeviceType:  frame.DeviceSensor,
		DeviceID:    deviceID,
		DataType:    frame.DataFloat32,
		Operation:   frame.OpSensorRead,
		Payload:     frame.Float32Payload(42.0),
	}
}

func pipePair(t *testing.T) (*Link, *Link) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return New(a), New(b)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	ground, vehicle := pipePair(t)

	go func() {
		_ = vehicle.Send(testFrame(3))
	}()

	got, err := ground.Receive()
	require.NoError(t, err)
	assert.Equal(t, testFrame(3), got)
}

func TestReceiveTimesOutWhenIdle(t *testing.T) {
	ground, _ := pipePair(t)
	ground.SetReceiveTimeout(20 * time.Millisecond)

	_, err := ground.Receive()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReceiveResyncsOnGarbage(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	ground := New(a)

	go func() {
		// Leading junk that contains no wire header byte, then a valid
		// frame.
		_, _ = b.Write([]byte{0x00, 0x11, 0x22, 0x33})
		f := testFrame(7)
		_, _ = b.Write(f.Encode())
	}()

	got, err := ground.Receive()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), got.DeviceID)
}

func TestReceiveReportsBadCRC(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	ground := New(a)

	go func() {
		f := testFrame(1)
		encoded := f.Encode()
		encoded[8] ^= 0x40
		_, _ = b.Write(encoded)
	}()

	_, err := ground.Receive()
	assert.ErrorIs(t, err, frame.ErrBadCRC)
}
