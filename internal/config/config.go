package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/MountGo/internal/hw/gpio"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// Default values applied by Load.
const (
	DefaultAngleLimit  = 450 // tenths of a degree
	DefaultCycleHz     = 50
	DefaultSystemID    = 1
	DefaultComponentID = 154 // MAV_COMP_ID_GIMBAL
	DefaultTimeoutMs   = 1000
)

// AxisConfig holds the manual input binding and travel of one mount axis.
type AxisConfig struct {
	RCIn   int               `yaml:"rc_in"`   // 1-based rc_channels index. 0 = no manual input.
	Limits motion.AxisLimits `yaml:",inline"` // tenths of a degree
}

// MountConfig describes the mount state machine at startup.
type MountConfig struct {
	Mode      mount.Mode      `yaml:"mode"`
	Retract   mount.Angles    `yaml:"retract"` // degrees
	Neutral   mount.Angles    `yaml:"neutral"` // degrees
	Control   mount.Angles    `yaml:"control"` // degrees
	Stabilize mount.StabFlags `yaml:"stabilize"`
	Roll      AxisConfig      `yaml:"roll"`
	Tilt      AxisConfig      `yaml:"tilt"`
	Pan       AxisConfig      `yaml:"pan"`
}

// ServoConfig holds the PWM wiring of one servo.
type ServoConfig struct {
	Pin        int `yaml:"pin"`          // BCM pin with hardware PWM
	EnablePin  int `yaml:"enable_pin"`   // optional power rail enable. 0 = not used. Active HIGH.
	MinPulseUs int `yaml:"min_pulse_us"` // pulse at angle_min (default 1000)
	MaxPulseUs int `yaml:"max_pulse_us"` // pulse at angle_max (default 2000)
	FrameUs    int `yaml:"frame_us"`     // PWM period (default 20000)
}

// ServosConfig binds servos to axes. A missing entry means the axis is not wired.
type ServosConfig struct {
	Roll *ServoConfig `yaml:"roll,omitempty"`
	Tilt *ServoConfig `yaml:"tilt,omitempty"`
	Pan  *ServoConfig `yaml:"pan,omitempty"`
}

// StepperConfig holds the step/dir wiring of a stepper-driven axis.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"`    // A4988 ENABLE pin. 0 = not used. Active LOW.
	StepsPerRev   int `yaml:"steps_per_rev"` // full steps per motor turn, including gearing
	Microstepping int `yaml:"microstepping"` // default 1
	StepDelayUs   int `yaml:"step_delay_us"` // half-cycle of the STEP pulse (default 1000)
}

// StepDelay returns the STEP half-cycle duration.
func (s StepperConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayUs) * time.Microsecond
}

// SteppersConfig binds stepper motors to axes. An axis takes either a servo
// or a stepper.
type SteppersConfig struct {
	Roll *StepperConfig `yaml:"roll,omitempty"`
	Tilt *StepperConfig `yaml:"tilt,omitempty"`
	Pan  *StepperConfig `yaml:"pan,omitempty"`
}

// LinkConfig is the address of this mount on the command link.
type LinkConfig struct {
	SystemID    uint8 `yaml:"system_id"`
	ComponentID uint8 `yaml:"component_id"`
}

// TelemetryConfig controls how long vehicle samples stay valid.
type TelemetryConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// WebConfig configures the HTTP surface.
type WebConfig struct {
	// AuthSecret is the HS256 key for bearer tokens on mutating routes.
	// Empty disables authentication.
	AuthSecret string `yaml:"auth_secret"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	CycleHz    float64 `yaml:"cycle_hz"`    // control cycle rate
	DebugLevel int     `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool    `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Mount      MountConfig               `yaml:"mount"`
	Servos     ServosConfig              `yaml:"servos"`
	Steppers   SteppersConfig            `yaml:"steppers,omitempty"`
	RCChannels map[int]mount.Calibration `yaml:"rc_channels,omitempty"` // keyed by 1-based channel index
	Link       LinkConfig                `yaml:"link"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
	Web        WebConfig                 `yaml:"web"`
	Defaults   DefaultsConfig            `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory, without traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain ..", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}

func (c *Config) applyDefaults() error {
	if !c.Mount.Mode.Valid() {
		return fmt.Errorf("mount.mode: unknown mode %d", int(c.Mount.Mode))
	}
	for _, sp := range []struct {
		name string
		a    mount.Angles
	}{{"retract", c.Mount.Retract}, {"neutral", c.Mount.Neutral}, {"control", c.Mount.Control}} {
		for _, v := range []float64{sp.a.Roll, sp.a.Tilt, sp.a.Pan} {
			if math.IsNaN(v) || math.Abs(v) > 360 {
				return fmt.Errorf("mount.%s: angle %g out of range [-360, 360]", sp.name, v)
			}
		}
	}
	for _, ax := range []struct {
		name string
		cfg  *AxisConfig
	}{{"roll", &c.Mount.Roll}, {"tilt", &c.Mount.Tilt}, {"pan", &c.Mount.Pan}} {
		if ax.cfg.Limits == (motion.AxisLimits{}) {
			ax.cfg.Limits = motion.AxisLimits{Min: -DefaultAngleLimit, Max: DefaultAngleLimit}
		}
		if ax.cfg.RCIn != 0 {
			if _, ok := c.RCChannels[ax.cfg.RCIn]; !ok {
				return fmt.Errorf("mount.%s.rc_in: channel %d has no rc_channels entry", ax.name, ax.cfg.RCIn)
			}
		}
	}

	pins := map[int]string{}
	for _, sv := range []struct {
		name string
		cfg  *ServoConfig
	}{{"roll", c.Servos.Roll}, {"tilt", c.Servos.Tilt}, {"pan", c.Servos.Pan}} {
		if sv.cfg == nil {
			continue
		}
		if !gpio.SupportsPWM(sv.cfg.Pin) {
			return fmt.Errorf("servos.%s.pin: pin %d has no hardware PWM (use 12, 13, 18 or 19)", sv.name, sv.cfg.Pin)
		}
		if other, dup := pins[sv.cfg.Pin]; dup {
			return fmt.Errorf("servos.%s.pin: pin %d already used by %s", sv.name, sv.cfg.Pin, other)
		}
		pins[sv.cfg.Pin] = sv.name
		if sv.cfg.MinPulseUs < 0 || sv.cfg.MaxPulseUs < 0 {
			return fmt.Errorf("servos.%s: pulse widths must be positive", sv.name)
		}
	}
	for _, st := range []struct {
		name  string
		cfg   *StepperConfig
		servo *ServoConfig
	}{{"roll", c.Steppers.Roll, c.Servos.Roll}, {"tilt", c.Steppers.Tilt, c.Servos.Tilt}, {"pan", c.Steppers.Pan, c.Servos.Pan}} {
		if st.cfg == nil {
			continue
		}
		if st.servo != nil {
			return fmt.Errorf("steppers.%s: axis already driven by a servo", st.name)
		}
		if st.cfg.StepsPerRev <= 0 {
			return fmt.Errorf("steppers.%s.steps_per_rev must be positive", st.name)
		}
		for _, pin := range []int{st.cfg.StepPin, st.cfg.DirPin, st.cfg.EnablePin} {
			if pin == 0 {
				continue
			}
			if other, dup := pins[pin]; dup {
				return fmt.Errorf("steppers.%s: pin %d already used by %s", st.name, pin, other)
			}
			pins[pin] = st.name + " stepper"
		}
	}

	if c.Link.SystemID == 0 {
		c.Link.SystemID = DefaultSystemID
	}
	if c.Link.ComponentID == 0 {
		c.Link.ComponentID = DefaultComponentID
	}
	if c.Telemetry.TimeoutMs <= 0 {
		c.Telemetry.TimeoutMs = DefaultTimeoutMs
	}
	if c.Defaults.CycleHz == 0 {
		c.Defaults.CycleHz = DefaultCycleHz
	}
	if c.Defaults.CycleHz < 0 || c.Defaults.CycleHz > 1000 {
		return fmt.Errorf("cycle_hz must be between 0 and 1000, got %.2f", c.Defaults.CycleHz)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// MountParams returns the state machine configuration.
func (c *Config) MountParams() mount.Config {
	var axes [3]mount.AxisConfig
	axes[motion.Roll] = mount.AxisConfig{RCIn: c.Mount.Roll.RCIn, Limits: c.Mount.Roll.Limits}
	axes[motion.Tilt] = mount.AxisConfig{RCIn: c.Mount.Tilt.RCIn, Limits: c.Mount.Tilt.Limits}
	axes[motion.Pan] = mount.AxisConfig{RCIn: c.Mount.Pan.RCIn, Limits: c.Mount.Pan.Limits}
	return mount.Config{
		Mode:    c.Mount.Mode,
		Retract: c.Mount.Retract,
		Neutral: c.Mount.Neutral,
		Control: c.Mount.Control,
		Stab:    c.Mount.Stabilize,
		Axes:    axes,
	}
}

// CyclePeriod returns the duration of one control cycle.
func (c *Config) CyclePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Defaults.CycleHz)
}

// TelemetryTimeout returns how long a vehicle sample stays valid.
func (c *Config) TelemetryTimeout() time.Duration {
	return time.Duration(c.Telemetry.TimeoutMs) * time.Millisecond
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mountgo-*.yaml")
	if err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// SetpointStore persists retract and neutral set-points back into the config
// file. It implements mount.Store.
//
// Each save re-reads the file and replaces only mount.retract or
// mount.neutral, so runtime overrides never reach the file and the other
// keys keep their comments.
type SetpointStore struct {
	mu   sync.Mutex
	path string
}

// NewSetpointStore creates a store for the config file at path.
func NewSetpointStore(path string) *SetpointStore {
	return &SetpointStore{path: path}
}

// SaveSetpoint writes the named set-point into the config file.
func (s *SetpointStore) SaveSetpoint(name string, a mount.Angles) error {
	if name != mount.SetpointRetract && name != mount.SetpointNeutral {
		return fmt.Errorf("unknown set-point %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readConfigFile(s.path)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return errors.New("config file is not a YAML mapping")
	}

	var value yaml.Node
	if err := value.Encode(a); err != nil {
		return fmt.Errorf("marshal set-point: %w", err)
	}
	*mappingEntry(mappingEntry(doc.Content[0], "mount"), name) = value

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return writeFileAtomic(s.path, out)
}

// mappingEntry returns the value stored under key in the mapping m, adding
// an empty mapping when the key is missing. A null value becomes a mapping.
func mappingEntry(m *yaml.Node, key string) *yaml.Node {
	var v *yaml.Node
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v = m.Content[i+1]
			break
		}
	}
	if v == nil {
		v = &yaml.Node{}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	}
	if v.Kind != yaml.MappingNode {
		*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	return v
}
