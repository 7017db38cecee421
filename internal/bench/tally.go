package bench

import (
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

// Tally follows a scan's events and keeps the readings taken by this run,
// separate from any baseline the run was seeded with.
type Tally struct {
	fresh   device.Result
	skipped []string
	final   *scan.Event
	total   int
	seen    int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{fresh: device.Result{}}
}

// Observe records ev.
func (t *Tally) Observe(ev scan.Event) {
	t.total = ev.Total
	switch ev.Kind {
	case scan.EventReading:
		t.seen++
		if v, ok := ev.Current(); ok {
			t.fresh.Set(ev.Device.Key, v)
		} else {
			t.fresh.SetMissing(ev.Device.Key)
		}
	case scan.EventSkipped:
		t.seen++
		t.skipped = append(t.skipped, ev.Device.Key)
	case scan.EventFinished:
		f := ev
		t.final = &f
	}
}

// Drain observes every event on events, calling fn for each when set, and
// returns once the channel closes.
func (t *Tally) Drain(events <-chan scan.Event, fn func(scan.Event)) {
	for ev := range events {
		t.Observe(ev)
		if fn != nil {
			fn(ev)
		}
	}
}

// Fresh returns the readings taken by this run.
func (t *Tally) Fresh() device.Result { return t.fresh.Clone() }

// Skipped returns the keys of devices that could not be routed.
func (t *Tally) Skipped() []string { return append([]string(nil), t.skipped...) }

// Progress returns visited and total device counts.
func (t *Tally) Progress() (int, int) { return t.seen, t.total }

// Final returns the finished event once the run has ended.
func (t *Tally) Final() (scan.Event, bool) {
	if t.final == nil {
		return scan.Event{}, false
	}
	return *t.final, true
}
