package mount

import (
	"fmt"
	"math"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
)

// ConfigureCommand selects the operating mode and stabilization flags.
type ConfigureCommand struct {
	Mode     Mode `json:"mode"`
	StabRoll bool `json:"stab_roll"`
	StabTilt bool `json:"stab_tilt"`
	StabPan  bool `json:"stab_pan"`
}

// ControlCommand carries mode-dependent inputs. For angle modes A is tilt,
// B is roll and C is pan in centi-degrees. In GPS point mode A is latitude,
// B longitude (1e-7 degrees) and C altitude (centimeters).
type ControlCommand struct {
	InputA       int32 `json:"input_a"`
	InputB       int32 `json:"input_b"`
	InputC       int32 `json:"input_c"`
	SavePosition bool  `json:"save_position"`
}

// StatusReport mirrors the ControlCommand layout: tilt, roll and pan of the
// computed orientation in centi-degrees, or the GPS target in GPS point mode.
type StatusReport struct {
	Mode      Mode  `json:"mode"`
	PointingA int32 `json:"pointing_a"`
	PointingB int32 `json:"pointing_b"`
	PointingC int32 `json:"pointing_c"`
}

// Setpoint names used with Store.
const (
	SetpointRetract = "retract"
	SetpointNeutral = "neutral"
)

// HandleConfigure applies a configure command. Commands not addressed to this
// mount are ignored.
func (m *Mount) HandleConfigure(cmd ConfigureCommand, addressed bool) {
	if !addressed {
		return
	}
	debug.Command("configure", cmd)
	m.SetMode(cmd.Mode)
	m.stab = StabFlags{Roll: cmd.StabRoll, Tilt: cmd.StabTilt, Pan: cmd.StabPan}
}

// HandleControl applies a control command to the set-point of the current
// mode. Retract and neutral set-points are persisted when SavePosition is set.
func (m *Mount) HandleControl(cmd ControlCommand, addressed bool) error {
	if !addressed {
		return nil
	}
	debug.Command("control", cmd)

	roll := float64(cmd.InputB) / 100.0
	tilt := float64(cmd.InputA) / 100.0
	pan := float64(cmd.InputC) / 100.0

	switch m.mode {
	case ModeRetract:
		m.SetRetractAngles(roll, tilt, pan)
		if cmd.SavePosition {
			return m.save(SetpointRetract, m.retract)
		}
	case ModeNeutral:
		m.SetNeutralAngles(roll, tilt, pan)
		if cmd.SavePosition {
			return m.save(SetpointNeutral, m.neutral)
		}
	case ModeMavlinkTargeting:
		m.SetControlAngles(roll, tilt, pan)
	case ModeRCTargeting:
		// start manual control from the neutral position
		m.angles = m.neutral
	case ModeGPSPoint:
		m.SetGPSTarget(geometry.Location{Lat: cmd.InputA, Lon: cmd.InputB, Alt: cmd.InputC})
	default:
		return fmt.Errorf("control: %w %d", ErrUnknownMode, int(m.mode))
	}
	return nil
}

// HandleStatus reports the mount state. It never mutates the mount.
// ok is false when the request is not addressed to this mount.
func (m *Mount) HandleStatus(addressed bool) (report StatusReport, ok bool) {
	if !addressed {
		return StatusReport{}, false
	}
	report.Mode = m.mode
	switch m.mode {
	case ModeRetract, ModeNeutral, ModeMavlinkTargeting, ModeRCTargeting:
		report.PointingA = centiDegrees(m.angles.Tilt)
		report.PointingB = centiDegrees(m.angles.Roll)
		report.PointingC = centiDegrees(m.angles.Pan)
	case ModeGPSPoint:
		report.PointingA = m.target.Lat
		report.PointingB = m.target.Lon
		report.PointingC = m.target.Alt
	}
	return report, true
}

// SetROI points the mount at a region of interest: the location becomes the
// GPS target and the mode switches to GPS point.
func (m *Mount) SetROI(loc geometry.Location) {
	debug.Command("roi", loc)
	m.SetGPSTarget(loc)
	m.SetMode(ModeGPSPoint)
}

// ConfigureFromMission is the mission-script configure entry point.
// Mission commands carry no mount configuration yet, so it changes nothing.
func (m *Mount) ConfigureFromMission() error {
	debug.Info("Mission mount configure ignored")
	return ErrMissionUnsupported
}

// ControlFromMission is the mission-script control entry point.
// Mission commands carry no mount inputs yet, so it changes nothing.
func (m *Mount) ControlFromMission() error {
	debug.Info("Mission mount control ignored")
	return ErrMissionUnsupported
}

func (m *Mount) save(name string, a Angles) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveSetpoint(name, a); err != nil {
		return fmt.Errorf("save %s set-point: %w", name, err)
	}
	debug.Live("Saved %s set-point", name)
	return nil
}

func centiDegrees(deg float64) int32 {
	return int32(math.Round(deg * 100))
}
