// Package rcin holds the latest readings of the manual (RC) input channels.
package rcin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cjeanneret/MountGo/internal/logic/mount"
)

// MaxChannels is the highest channel index accepted.
const MaxChannels = 16

// Reading is a snapshot of one channel.
type Reading struct {
	Raw int               `json:"raw"`
	Cal mount.Calibration `json:"calibration"`
}

// RawValue implements mount.ManualChannel.
func (r Reading) RawValue() int { return r.Raw }

// Calibration implements mount.ManualChannel.
func (r Reading) Calibration() mount.Calibration { return r.Cal }

// Bank is the set of configured manual channels. Raw values are written by
// the transport goroutines and read by the control cycle.
type Bank struct {
	mu       sync.RWMutex
	channels map[int]Reading
}

// NewBank creates a bank with one channel per calibration, keyed by 1-based
// index. Every channel starts at its calibrated center.
func NewBank(cals map[int]mount.Calibration) (*Bank, error) {
	b := &Bank{channels: make(map[int]Reading, len(cals))}
	for idx, cal := range cals {
		if idx < 1 || idx > MaxChannels {
			return nil, fmt.Errorf("rc channel %d out of range 1..%d", idx, MaxChannels)
		}
		b.channels[idx] = Reading{Raw: cal.Center, Cal: cal}
	}
	return b, nil
}

// Set records a raw reading for a configured channel.
func (b *Bank) Set(index, raw int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.channels[index]
	if !ok {
		return fmt.Errorf("rc channel %d is not configured", index)
	}
	r.Raw = raw
	b.channels[index] = r
	return nil
}

// Channel implements mount.ChannelBank.
func (b *Bank) Channel(index int) (mount.ManualChannel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.channels[index]
	if !ok {
		return nil, false
	}
	return r, true
}

// Indexes returns the configured channel indexes in ascending order.
func (b *Bank) Indexes() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := make([]int, 0, len(b.channels))
	for i := range b.channels {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
