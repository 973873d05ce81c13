package frame

// Protocol field identifiers. The values used for SERVICE traffic to servos
// match the flight hardware; identifiers the hardware side leaves open
// (feeds, relays, sensors) are fixed here and must agree with the vehicle end.

// Board IDs (5 bits).
const (
	BoardSoftware uint8 = 0x01
	BoardRocket   uint8 = 0x02
)

// Priorities (2 bits).
const (
	PriorityLow  uint8 = 0x01
	PriorityHigh uint8 = 0x02
)

// Actions (4 bits).
const (
	ActionService uint8 = 0x01
	ActionFeed    uint8 = 0x02
	ActionAck     uint8 = 0x03
	ActionNack    uint8 = 0x04
)

// Device types (6 bits).
const (
	DeviceServo  uint8 = 0x00
	DeviceRelay  uint8 = 0x01
	DeviceSensor uint8 = 0x02
)

// Payload data types (4 bits).
const (
	DataNone    uint8 = 0x00
	DataInt16   uint8 = 0x05
	DataFloat32 uint8 = 0x07
)

// Operations (8 bits). Meaning depends on the device type.
const (
	OpServoPosition uint8 = 0x05
	OpRelayOpen     uint8 = 0x01
	OpRelayClose    uint8 = 0x02
	OpSensorRead    uint8 = 0x01
)
