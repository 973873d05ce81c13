// Package device loads and validates the vehicle device map: which servos,
// relays, and sensors exist, their bus identifiers, and the servo calibration
// positions.
package device

import (
	"errors"
	"fmt"
	"os"

	multierror "github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ErrUnknownDevice reports a command against a name missing from the device
// map. It indicates a programming or configuration error, not a flight
// condition, and is surfaced at the point of the call.
var ErrUnknownDevice = errors.New("unknown device name")

// Servo describes one servo: its bus identifier and the two calibration
// points, in raw servo units.
type Servo struct {
	DeviceID  uint8 `yaml:"device_id"`
	OpenPos   int   `yaml:"open_pos"`
	ClosedPos int   `yaml:"closed_pos"`
}

type Relay struct {
	DeviceID uint8 `yaml:"device_id"`
}

type Sensor struct {
	DeviceID uint8 `yaml:"device_id"`
}

// Config is the full device map. It is loaded once at startup and read-only
// for the life of the process.
type Config struct {
	Devices struct {
		Servo  map[string]Servo  `yaml:"servo"`
		Relay  map[string]Relay  `yaml:"relay"`
		Sensor map[string]Sensor `yaml:"sensor"`
	} `yaml:"devices"`
}

// Devices the flight sequence cannot run without.
var (
	requiredServos  = []string{"fuel_intake", "oxidizer_intake", "fuel_main", "oxidizer_main"}
	requiredRelays  = []string{"oxidizer_heater", "igniter", "parachute"}
	requiredSensors = []string{"fuel_level", "oxidizer_level", "oxidizer_pressure", "altitude"}
)

// Load reads the YAML device map at path and validates it, so a broken map
// fails at startup rather than mid-mission.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("device: read config: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals and validates a YAML device map.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("device: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every device the flight sequence commands or reads is
// present. Problems are accumulated so one read reports every missing
// device.
func (c *Config) Validate() error {
	var result *multierror.Error
	for _, name := range requiredServos {
		if _, ok := c.Devices.Servo[name]; !ok {
			result = multierror.Append(result, fmt.Errorf("device: missing servo %q", name))
		}
	}
	for _, name := range requiredRelays {
		if _, ok := c.Devices.Relay[name]; !ok {
			result = multierror.Append(result, fmt.Errorf("device: missing relay %q", name))
		}
	}
	for _, name := range requiredSensors {
		if _, ok := c.Devices.Sensor[name]; !ok {
			result = multierror.Append(result, fmt.Errorf("device: missing sensor %q", name))
		}
	}
	return result.ErrorOrNil()
}
