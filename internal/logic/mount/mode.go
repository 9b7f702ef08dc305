package mount

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the mount operating mode. The numeric values match the
// MAV_MOUNT_MODE wire values.
type Mode int

const (
	ModeRetract Mode = iota
	ModeNeutral
	ModeMavlinkTargeting
	ModeRCTargeting
	ModeGPSPoint
)

func (m Mode) String() string {
	switch m {
	case ModeRetract:
		return "retract"
	case ModeNeutral:
		return "neutral"
	case ModeMavlinkTargeting:
		return "mavlink_targeting"
	case ModeRCTargeting:
		return "rc_targeting"
	case ModeGPSPoint:
		return "gps_point"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m >= ModeRetract && m <= ModeGPSPoint
}

// ParseMode converts a mode name (or its wire number) into a Mode.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "retract":
		return ModeRetract, nil
	case "neutral":
		return ModeNeutral, nil
	case "mavlink_targeting", "mavlink":
		return ModeMavlinkTargeting, nil
	case "rc_targeting", "rc":
		return ModeRCTargeting, nil
	case "gps_point", "gps":
		return ModeGPSPoint, nil
	}
	if n, err := strconv.Atoi(normalized); err == nil && Mode(n).Valid() {
		return Mode(n), nil
	}
	return ModeRetract, fmt.Errorf("unknown mount mode %q", value)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText allows modes to be loaded from names in JSON and YAML.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
