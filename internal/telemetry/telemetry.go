// Package telemetry keeps the latest vehicle attitude and position fix.
//
// Samples are pushed by the transport goroutines and read once per control
// cycle. A sample older than the timeout is treated as missing, so the mount
// falls back to unstabilized output or holds its GPS pointing.
package telemetry

import (
	"sync"
	"time"

	"github.com/cjeanneret/MountGo/internal/logic/geometry"
)

// DefaultTimeout is used when no staleness timeout is configured.
const DefaultTimeout = time.Second

// Attitude is the vehicle orientation in radians.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Snapshot is a copy of the store for status reporting.
type Snapshot struct {
	Attitude      Attitude          `json:"attitude"`
	AttitudeFresh bool              `json:"attitude_fresh"`
	Position      geometry.Location `json:"position"`
	PositionFresh bool              `json:"position_fresh"`
	Seq           uint64            `json:"seq"`
}

// State stores the latest samples. It implements mount.AttitudeSource and
// mount.PositionSource.
type State struct {
	mu      sync.RWMutex
	timeout time.Duration
	now     func() time.Time

	attitude   Attitude
	attitudeAt time.Time
	position   geometry.Location
	positionAt time.Time
	seq        uint64
}

// NewState creates an empty store. timeout <= 0 selects DefaultTimeout.
func NewState(timeout time.Duration) *State {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &State{timeout: timeout, now: time.Now}
}

// UpdateAttitude stores a new attitude sample.
func (s *State) UpdateAttitude(a Attitude) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attitude = a
	s.attitudeAt = s.now()
	s.seq++
}

// UpdatePosition stores a new position fix.
func (s *State) UpdatePosition(loc geometry.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = loc
	s.positionAt = s.now()
	s.seq++
}

// Rotation returns the body-to-Earth rotation of the latest attitude.
// ok is false when no fresh attitude is available.
func (s *State) Rotation() (geometry.Matrix3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.fresh(s.attitudeAt) {
		return geometry.Matrix3{}, false
	}
	return geometry.FromEuler(s.attitude.Roll, s.attitude.Pitch, s.attitude.Yaw), true
}

// Roll returns the latest roll in radians.
func (s *State) Roll() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attitude.Roll
}

// Pitch returns the latest pitch in radians.
func (s *State) Pitch() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attitude.Pitch
}

// Position returns the latest fix. ok is false without a fresh fix.
func (s *State) Position() (geometry.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position, s.fresh(s.positionAt)
}

// Snapshot returns the current samples and their freshness.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Attitude:      s.attitude,
		AttitudeFresh: s.fresh(s.attitudeAt),
		Position:      s.position,
		PositionFresh: s.fresh(s.positionAt),
		Seq:           s.seq,
	}
}

func (s *State) fresh(at time.Time) bool {
	return !at.IsZero() && s.now().Sub(at) <= s.timeout
}
