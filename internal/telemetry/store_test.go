package telemetry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsDefaultForMissingKey(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 12.5, s.Get("oxidizer_pressure", 12.5))
	assert.Nil(t, s.Get("oxidizer_pressure", nil))
}

func TestUpdateOverwrites(t *testing.T) {
	s := NewStore()
	s.Update("altitude", 10.0)
	s.Update("altitude", 20.0)
	assert.Equal(t, 20.0, s.Get("altitude", 0.0))
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewStore()
	s.Update("fuel_level", 50.0)
	s.Update("fuel_intake_pos", 1200)

	snap1 := s.Snapshot()
	snap2 := s.Snapshot()
	assert.Equal(t, snap1, snap2, "back-to-back snapshots with no update must be equal")

	// Updates after a snapshot must not show through.
	s.Update("fuel_level", 75.0)
	assert.Equal(t, 50.0, snap1["fuel_level"])

	// Mutating a snapshot must not touch the store.
	snap1["fuel_level"] = -1.0
	assert.Equal(t, 75.0, s.Get("fuel_level", 0.0))
}

func TestConcurrentReadersSingleWriter(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			s.Update("oxidizer_level", float64(i))
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = s.Get("oxidizer_level", 0.0)
				_ = s.Snapshot()
			}
		}()
	}

	wg.Wait()
	<-done
}
