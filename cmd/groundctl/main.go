// groundctl runs the automated launch sequence against a live vehicle link.
//
// Configuration comes from the environment (a .env file is honored):
//
//	VEHICLE_ADDR      vehicle link address (default 127.0.0.1:3000)
//	DEVICE_CONFIG     device map YAML (default device_config.yaml)
//	MQTT_BROKER       optional broker for state/telemetry publishing
//	GROUNDCTL_CONSOLE set to 1 for the interactive operator console
package main

import (
	"context"
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/skybound/groundctl/internal/bridge"
	"github.com/skybound/groundctl/internal/console"
	"github.com/skybound/groundctl/internal/device"
	"github.com/skybound/groundctl/internal/flight"
	"github.com/skybound/groundctl/internal/groundbus"
	"github.com/skybound/groundctl/internal/link"
	"github.com/skybound/groundctl/internal/mission"
	"github.com/skybound/groundctl/internal/worker"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.Println("Starting groundctl...")

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	vehicleAddr := envOr("VEHICLE_ADDR", "127.0.0.1:3000")
	configPath := envOr("DEVICE_CONFIG", "device_config.yaml")

	cfg, err := device.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load device config %s: %v", configPath, err)
	}

	l, err := link.Dial(vehicleAddr)
	if err != nil {
		log.Fatalf("Failed to connect to vehicle at %s: %v", vehicleAddr, err)
	}
	defer l.Close()
	l.SetReceiveTimeout(100 * time.Millisecond)
	log.Printf("Vehicle link up at %s\n", vehicleAddr)

	b := bridge.New(cfg, l)
	b.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bus *groundbus.Publisher
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		bus, err = groundbus.Connect(broker, "groundctl")
		if err != nil {
			log.Printf("MQTT broker unavailable, continuing without: %v\n", err)
			bus = nil
		} else {
			defer bus.Close()
			worker.Go(ctx, cancel, "snapshot-worker", func(ctx context.Context) {
				groundbus.SnapshotWorker(ctx, bus, time.Second, b.Snapshot)
			})
			log.Println("Snapshot worker started")
		}
	}

	fcfg := flight.DefaultConfig()
	fcfg.OnState = func(s flight.State) {
		log.Printf("[STATE] %s\n", s)
		if bus != nil {
			bus.PublishState(string(s))
		}
	}
	fc := flight.New(b, fcfg)

	if os.Getenv("GROUNDCTL_CONSOLE") == "1" {
		worker.Go(ctx, cancel, "console-worker", func(ctx context.Context) {
			if err := console.Run(fc, b); err != nil {
				log.Printf("Console exited: %v\n", err)
			}
		})
		log.Println("Operator console started")
	}

	// Let the first feed cycle land before the sequence starts polling.
	time.Sleep(time.Second)

	final := mission.Run(fc)

	log.Printf("Mission complete, final state: %s\n", final)
	if final == flight.StateAbort {
		log.Printf("Abort reason: %s\n", fc.AbortReason())
	}

	snap := b.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	log.Println("Final telemetry:")
	for _, k := range keys {
		log.Printf("  %-24s %v\n", k, snap[k])
	}

	b.Stop()
	<-b.Done()
}
