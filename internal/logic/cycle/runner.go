// Package cycle runs the mount control loop at a fixed rate and serializes
// every command against it.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
)

// Status is a snapshot of the mount published after every change.
type Status struct {
	Mode        mount.Mode         `json:"mode"`
	Kind        string             `json:"kind"`
	Orientation mount.Angles       `json:"orientation"` // degrees
	Retract     mount.Angles       `json:"retract"`
	Neutral     mount.Angles       `json:"neutral"`
	Control     mount.Angles       `json:"control"`
	Stab        mount.StabFlags    `json:"stabilize"`
	Target      geometry.Location  `json:"target"`
	Report      mount.StatusReport `json:"report"`
	LastError   string             `json:"last_error,omitempty"`
}

// Runner owns a Mount. The control tick and every command go through the
// same mutex, so the Mount itself needs no locking.
type Runner struct {
	mu      sync.Mutex
	mount   *mount.Mount
	bank    mount.ChannelBank
	period  time.Duration
	cycles  uint64
	lastErr error

	publish   func(Status)
	published Status
	hasPub    bool
}

// NewRunner creates a runner ticking every period. bank may be nil when no
// manual channels are configured.
func NewRunner(m *mount.Mount, bank mount.ChannelBank, period time.Duration) *Runner {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	return &Runner{mount: m, bank: bank, period: period}
}

// OnStatus registers fn to receive the status whenever it changes.
// It is called with the runner lock held and must not call back into the runner.
func (r *Runner) OnStatus(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publish = fn
}

// Run ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	debug.Info("Control loop started (period %v)", r.period)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debug.Info("Control loop stopped after %d cycles", r.Cycles())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			_ = r.Step()
		}
	}
}

// Step runs one control cycle and returns its error, if any.
func (r *Runner) Step() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.mount.UpdatePosition(r.bank)
	r.cycles++
	r.noteError(err)
	r.publishLocked()
	return err
}

// Do runs fn with exclusive access to the mount, between two cycles.
func (r *Runner) Do(fn func(m *mount.Mount) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := fn(r.mount)
	if err != nil {
		debug.Error(err)
	}
	r.publishLocked()
	return err
}

// Status returns the current snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Cycles returns the number of completed control cycles.
func (r *Runner) Cycles() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles
}

// noteError logs cycle errors once per distinct message.
func (r *Runner) noteError(err error) {
	switch {
	case err == nil:
		if r.lastErr != nil {
			debug.Info("Control cycle recovered")
		}
	case r.lastErr == nil || r.lastErr.Error() != err.Error():
		debug.Error(err)
	}
	r.lastErr = err
}

func (r *Runner) snapshotLocked() Status {
	m := r.mount
	retract, neutral, control := m.Setpoints()
	report, _ := m.HandleStatus(true)
	st := Status{
		Mode:        m.Mode(),
		Kind:        m.Kind().String(),
		Orientation: m.Orientation(),
		Retract:     retract,
		Neutral:     neutral,
		Control:     control,
		Stab:        m.Stabilization(),
		Target:      m.GPSTarget(),
		Report:      report,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

func (r *Runner) publishLocked() {
	if r.publish == nil {
		return
	}
	st := r.snapshotLocked()
	if r.hasPub && st == r.published {
		return
	}
	r.published, r.hasPub = st, true
	r.publish(st)
}
