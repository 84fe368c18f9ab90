package machine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingDriver holds each pulse open until released, and counts how
// many pulses are in flight at once.
type blockingDriver struct {
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	total    atomic.Int32
}

func (d *blockingDriver) Pulse(pin int, width time.Duration) error {
	n := d.inFlight.Add(1)
	for {
		max := d.maxSeen.Load()
		if n <= max || d.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	<-d.release
	d.inFlight.Add(-1)
	d.total.Add(1)
	return nil
}

func TestDispenseGateDropsConcurrent(t *testing.T) {
	driver := &blockingDriver{release: make(chan struct{})}
	d := NewDispenser(driver, time.Millisecond)

	const callers = 20
	results := make([]bool, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			started.Done()
			results[i] = d.Dispense(516)
			done.Done()
		}(i)
	}
	started.Wait()
	// give the racers time to hit the gate while one pulse is held open
	time.Sleep(50 * time.Millisecond)
	close(driver.release)
	done.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	if accepted < 1 {
		t.Fatalf("no dispense went through")
	}
	if got := driver.maxSeen.Load(); got != 1 {
		t.Fatalf("gate allowed %d concurrent actuations, want 1", got)
	}
	if got := driver.total.Load(); int(got) != accepted {
		t.Fatalf("driver pulses %d != accepted calls %d", got, accepted)
	}
}

type errDriver struct{}

func (errDriver) Pulse(pin int, width time.Duration) error {
	return errNoGpio
}

var errNoGpio = &noGpioError{}

type noGpioError struct{}

func (*noGpioError) Error() string { return "no such gpio" }

func TestDispenseSimulatesWithoutHardware(t *testing.T) {
	d := NewDispenser(errDriver{}, time.Millisecond)
	if !d.Dispense(516) {
		t.Fatalf("simulated dispense should report success")
	}
	// gate must be released after a simulated vend
	if !d.Dispense(517) {
		t.Fatalf("gate not released after simulated vend")
	}
}
