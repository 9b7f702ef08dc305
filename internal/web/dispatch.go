package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/hw/rcin"
	"github.com/cjeanneret/MountGo/internal/logic/cycle"
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
	"github.com/cjeanneret/MountGo/internal/protocol"
	"github.com/cjeanneret/MountGo/internal/telemetry"
)

// MountRunner gives serialized access to the mount between control cycles.
// It is implemented by cycle.Runner.
type MountRunner interface {
	Do(fn func(m *mount.Mount) error) error
	Status() cycle.Status
}

// Link is the address of this mount on the command link.
type Link struct {
	SystemID    uint8
	ComponentID uint8
}

// Dispatcher applies protocol messages to the mount and its inputs.
// It is shared by the HTTP routes and the websocket clients.
type Dispatcher struct {
	runner    MountRunner
	telemetry *telemetry.State
	bank      *rcin.Bank
	link      Link
}

// NewDispatcher creates a dispatcher. telemetry and bank may be nil, in which
// case the matching messages are rejected.
func NewDispatcher(runner MountRunner, tel *telemetry.State, bank *rcin.Bank, link Link) *Dispatcher {
	return &Dispatcher{runner: runner, telemetry: tel, bank: bank, link: link}
}

// Errors caused by the sender rather than the mount.
var (
	errBadPayload  = errors.New("bad payload")
	errUnknownType = errors.New("unknown message type")
)

// Dispatch handles one message. The reply is nil when nothing should be sent
// back, e.g. for a status request addressed to another mount.
func (d *Dispatcher) Dispatch(msg *protocol.Message) (*protocol.Message, error) {
	switch msg.Type {
	case protocol.TypePing:
		var p protocol.PingPayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return protocol.NewMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: p.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeConfigure:
		var p protocol.ConfigurePayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		addressed := d.addressed(p.Address)
		_ = d.runner.Do(func(m *mount.Mount) error {
			m.HandleConfigure(p.ConfigureCommand, addressed)
			return nil
		})
		return d.ack(msg.Type)

	case protocol.TypeControl:
		var p protocol.ControlPayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		addressed := d.addressed(p.Address)
		if err := d.runner.Do(func(m *mount.Mount) error {
			return m.HandleControl(p.ControlCommand, addressed)
		}); err != nil {
			return nil, err
		}
		return d.ack(msg.Type)

	case protocol.TypeStatusRequest:
		var p protocol.StatusRequestPayload
		if len(msg.Payload) > 0 {
			if err := msg.ParsePayload(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", errBadPayload, err)
			}
		}
		var (
			report mount.StatusReport
			ok     bool
		)
		_ = d.runner.Do(func(m *mount.Mount) error {
			report, ok = m.HandleStatus(d.addressed(p.Address))
			return nil
		})
		if !ok {
			return nil, nil
		}
		return protocol.NewMessage(protocol.TypeMountStatus, report)

	case protocol.TypeROI:
		var p protocol.ROIPayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		_ = d.runner.Do(func(m *mount.Mount) error {
			m.SetROI(p.Location)
			return nil
		})
		return d.ack(msg.Type)

	case protocol.TypeRCInput:
		var p protocol.RCInputPayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		if d.bank == nil {
			return nil, fmt.Errorf("%w: no rc channels configured", errBadPayload)
		}
		if err := d.bank.Set(p.Channel, p.Raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		return nil, nil

	case protocol.TypeAttitude:
		var p protocol.AttitudePayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		if d.telemetry == nil {
			return nil, fmt.Errorf("%w: telemetry disabled", errBadPayload)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		d.telemetry.UpdateAttitude(telemetry.Attitude{
			Roll:  geometry.Radians(p.Roll),
			Pitch: geometry.Radians(p.Pitch),
			Yaw:   geometry.Radians(p.Yaw),
		})
		return nil, nil

	case protocol.TypePosition:
		var p protocol.PositionPayload
		if err := msg.ParsePayload(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadPayload, err)
		}
		if d.telemetry == nil {
			return nil, fmt.Errorf("%w: telemetry disabled", errBadPayload)
		}
		d.telemetry.UpdatePosition(p.Location)
		return nil, nil

	default:
		return nil, fmt.Errorf("%w %q", errUnknownType, msg.Type)
	}
}

// ErrorReply converts a Dispatch error into a protocol error message.
func ErrorReply(err error) *protocol.Message {
	switch {
	case errors.Is(err, errUnknownType):
		return protocol.NewError(protocol.ErrUnknownType, err.Error())
	case errors.Is(err, errBadPayload):
		return protocol.NewError(protocol.ErrInvalidMessage, err.Error())
	}
	return protocol.NewError(protocol.ErrCommand, err.Error())
}

func (d *Dispatcher) addressed(a protocol.Address) bool {
	ok := a.Matches(d.link.SystemID, d.link.ComponentID)
	if !ok {
		debug.Verbose("Command for %d/%d ignored", a.TargetSystem, a.TargetComponent)
	}
	return ok
}

func (d *Dispatcher) ack(command string) (*protocol.Message, error) {
	return protocol.NewMessage(protocol.TypeAck, protocol.AckPayload{Command: command})
}
