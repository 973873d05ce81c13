// Package console provides the interactive operator console: live telemetry
// inspection and the manual abort switch. It exists because a starved
// polling loop looks exactly like a quiet one; the console lets an operator
// see the last readings and pull the plug.
package console

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/skybound/groundctl/internal/flight"
)

// Mission is the controller surface the console drives.
type Mission interface {
	State() flight.State
	AbortReason() flight.AbortReason
	RequestAbort()
}

// Telemetry is the bridge surface the console reads from.
type Telemetry interface {
	Snapshot() map[string]any
	Read(key string, def float64) float64
}

// Run drives the console until EOF or the quit command. Callers run it on
// its own goroutine alongside the mission.
func Run(m Mission, t Telemetry) error {
	rl, err := readline.New("groundctl> ")
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("console: %w", err)
		}

		if done := execute(rl.Stdout(), m, t, line); done {
			return nil
		}
	}
}

// execute runs one console command, returning true on quit.
func execute(out io.Writer, m Mission, t Telemetry, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "state":
		if reason := m.AbortReason(); reason != flight.AbortNone {
			fmt.Fprintf(out, "%s (%s)\n", m.State(), reason)
		} else {
			fmt.Fprintf(out, "%s\n", m.State())
		}

	case "telem":
		snap := t.Snapshot()
		if len(snap) == 0 {
			fmt.Fprintln(out, "no telemetry received yet")
			return false
		}
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%-24s %v\n", k, snap[k])
		}

	case "get":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: get <key>")
			return false
		}
		fmt.Fprintf(out, "%.3f\n", t.Read(fields[1], 0))

	case "abort":
		log.Printf("[CONSOLE] manual abort requested\n")
		m.RequestAbort()
		fmt.Fprintln(out, "abort requested; takes effect at the next poll")

	case "help":
		fmt.Fprintln(out, "commands: state, telem, get <key>, abort, quit")

	case "quit", "exit":
		return true

	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", fields[0])
	}
	return false
}
