// padsim runs the simulated vehicle: a TCP endpoint groundctl can fly a
// full mission against, with the pad/flight physics model enabled.
//
//	SIM_ADDR       listen address (default 127.0.0.1:3000)
//	DEVICE_CONFIG  device map YAML (default device_config.yaml)
package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/skybound/groundctl/internal/device"
	"github.com/skybound/groundctl/internal/simvehicle"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.Println("Starting padsim...")

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	addr := envOr("SIM_ADDR", "127.0.0.1:3000")
	configPath := envOr("DEVICE_CONFIG", "device_config.yaml")

	cfg, err := device.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load device config %s: %v", configPath, err)
	}

	v := simvehicle.New(cfg, 100*time.Millisecond)
	v.EnablePhysics()

	if err := v.Listen(addr); err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	log.Printf("Simulated vehicle listening at %s\n", v.Addr())
	v.Serve()
}
