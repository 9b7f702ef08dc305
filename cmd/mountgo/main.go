package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/MountGo/internal/auth"
	"github.com/cjeanneret/MountGo/internal/config"
	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/hw/gpio"
	"github.com/cjeanneret/MountGo/internal/hw/rcin"
	"github.com/cjeanneret/MountGo/internal/hw/servo"
	"github.com/cjeanneret/MountGo/internal/hw/stepper"
	"github.com/cjeanneret/MountGo/internal/logic/cycle"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
	"github.com/cjeanneret/MountGo/internal/telemetry"
	"github.com/cjeanneret/MountGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	cycleHz := flag.Float64("hz", 0, "override control cycle rate in Hz (1-1000)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	tokenSubject := flag.String("token", "", "print a control token for this subject and exit (needs web.auth_secret)")
	tokenTTL := flag.Duration("token_ttl", 24*time.Hour, "lifetime of the token printed by -token; 0 = no expiry")
	flag.Parse()

	// Validate CLI overrides (zero/negative values mean "use config default")
	if err := validateCLIOverrides(*cycleHz, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	applyOverrides(cfg, *cycleHz, *debugLevel)

	if *tokenSubject != "" {
		token, err := issueToken(cfg, *tokenSubject, *tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Cycle rate (Hz)", cfg.Defaults.CycleHz)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize actuators
	debug.Step(2, "Initializing actuators")
	actuators, err := newActuators(gpioDriver, cfg.Servos, cfg.Steppers)
	if err != nil {
		log.Fatalf("init actuators failed: %v", err)
	}
	defer actuators.disable()
	actuators.start(ctx)
	if err := actuators.enable(); err != nil {
		log.Fatalf("enable actuators failed: %v", err)
	}
	ctrl := actuators.controller()
	debug.Value("Mount type", ctrl.Kind())

	// Vehicle inputs
	debug.Step(3, "Initializing vehicle inputs")
	tel := telemetry.NewState(cfg.TelemetryTimeout())
	bank, err := rcin.NewBank(cfg.RCChannels)
	if err != nil {
		log.Fatalf("init rc channels failed: %v", err)
	}
	debug.Value("RC channels", bank.Indexes())
	debug.Value("Telemetry timeout", cfg.TelemetryTimeout())

	// Mount state machine and control loop
	debug.Step(4, "Creating mount controller")
	store := config.NewSetpointStore(*cfgPath)
	m := mount.New(cfg.MountParams(), ctrl, tel, tel, store)
	runner := cycle.NewRunner(m, bank, cfg.CyclePeriod())
	debug.Value("Startup mode", m.Mode())
	debug.PrintStruct("Stabilization", m.Stabilization())

	port := webPort.port()
	if port == 0 {
		debug.Summary("Mount control running")
		if err := runner.Run(ctx); err != nil {
			log.Fatalf("control loop: %v", err)
		}
		return
	}

	debug.Step(5, "Starting web server")
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	runner.OnStatus(broadcaster.BroadcastState)

	mw, err := newAuth(cfg.Web)
	if err != nil {
		log.Fatalf("init auth: %v", err)
	}
	staticFS, err := web.StaticFS()
	if err != nil {
		log.Fatalf("static files: %v", err)
	}
	dispatcher := web.NewDispatcher(runner, tel, bank, web.Link{
		SystemID:    cfg.Link.SystemID,
		ComponentID: cfg.Link.ComponentID,
	})
	handlers := web.NewHandlers(broadcaster, runner, dispatcher, tel, staticFS)
	srv := web.NewServer(fmt.Sprintf(":%d", port), handlers, mw)

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- runner.Run(ctx)
	}()

	debug.Summary("Mount control running")
	if err := srv.Run(ctx); err != nil {
		log.Printf("web server: %v", err)
		cancel()
	}
	if err := <-loopErr; err != nil {
		log.Printf("control loop: %v", err)
	}
}

// actuatorSet holds the actuator of every wired axis, indexed by motion.Axis.
// An axis has at most one of a servo or a stepper.
type actuatorSet struct {
	servos   [3]*servo.Servo
	steppers [3]*stepper.Stepper
}

// newActuators creates one servo or stepper per configured axis.
func newActuators(g gpio.Driver, servos config.ServosConfig, steppers config.SteppersConfig) (*actuatorSet, error) {
	var set actuatorSet
	for _, ax := range []struct {
		axis    motion.Axis
		servo   *config.ServoConfig
		stepper *config.StepperConfig
	}{
		{motion.Roll, servos.Roll, steppers.Roll},
		{motion.Tilt, servos.Tilt, steppers.Tilt},
		{motion.Pan, servos.Pan, steppers.Pan},
	} {
		name := ax.axis.String()
		switch {
		case ax.servo != nil:
			sv, err := servo.New(g, name, servo.Config{
				Pin:        ax.servo.Pin,
				EnablePin:  ax.servo.EnablePin,
				MinPulseUs: ax.servo.MinPulseUs,
				MaxPulseUs: ax.servo.MaxPulseUs,
				FrameUs:    ax.servo.FrameUs,
			})
			if err != nil {
				return nil, err
			}
			set.servos[ax.axis] = sv
			debug.PrintStruct(name+" servo config", *ax.servo)
		case ax.stepper != nil:
			st, err := stepper.New(g, name, stepper.Config{
				StepPin:       ax.stepper.StepPin,
				DirPin:        ax.stepper.DirPin,
				EnablePin:     ax.stepper.EnablePin,
				StepsPerRev:   ax.stepper.StepsPerRev,
				Microstepping: ax.stepper.Microstepping,
				StepDelay:     ax.stepper.StepDelay(),
			})
			if err != nil {
				return nil, err
			}
			set.steppers[ax.axis] = st
			debug.PrintStruct(name+" stepper config", *ax.stepper)
		}
	}
	return &set, nil
}

// controller binds the actuators to the mount axes.
func (s *actuatorSet) controller() *motion.Controller {
	var acts [3]motion.Actuator
	for _, axis := range motion.Axes {
		switch {
		case s.servos[axis] != nil:
			acts[axis] = s.servos[axis]
		case s.steppers[axis] != nil:
			acts[axis] = s.steppers[axis]
		}
	}
	return motion.NewController(acts[motion.Roll], acts[motion.Tilt], acts[motion.Pan])
}

// start runs the stepper motion loops until ctx is done.
func (s *actuatorSet) start(ctx context.Context) {
	for _, st := range s.steppers {
		if st == nil {
			continue
		}
		go func(st *stepper.Stepper) {
			if err := st.Run(ctx); err != nil {
				log.Printf("stepper stopped: %v", err)
			}
		}(st)
	}
}

// enable powers every actuator that has an enable pin.
func (s *actuatorSet) enable() error {
	for axis := range s.servos {
		var err error
		switch {
		case s.servos[axis] != nil:
			err = s.servos[axis].Enable()
		case s.steppers[axis] != nil:
			err = s.steppers[axis].Enable()
		}
		if err != nil {
			return fmt.Errorf("%s actuator: %w", motion.Axis(axis), err)
		}
	}
	return nil
}

// disable powers down every actuator that has an enable pin.
func (s *actuatorSet) disable() {
	for axis := range s.servos {
		var err error
		switch {
		case s.servos[axis] != nil:
			err = s.servos[axis].Disable()
		case s.steppers[axis] != nil:
			err = s.steppers[axis].Disable()
		}
		if err != nil {
			log.Printf("disabling %s actuator failed: %v", motion.Axis(axis), err)
		}
	}
}

// newAuth returns the bearer-token middleware, or nil when no secret is configured.
func newAuth(cfg config.WebConfig) (*auth.Middleware, error) {
	if cfg.AuthSecret == "" {
		debug.Info("Web authentication disabled (no web.auth_secret)")
		return nil, nil
	}
	v, err := auth.NewVerifier(cfg.AuthSecret)
	if err != nil {
		return nil, err
	}
	return auth.NewMiddleware(v), nil
}

// issueToken signs a control token with the configured secret.
func issueToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	if cfg.Web.AuthSecret == "" {
		return "", errors.New("web.auth_secret is not set")
	}
	v, err := auth.NewVerifier(cfg.Web.AuthSecret)
	if err != nil {
		return "", err
	}
	return v.Issue(subject, []string{auth.ScopeRead, auth.ScopeControl}, ttl)
}

// validateCLIOverrides checks that CLI overrides are within valid ranges.
// A zero rate and a negative debug level are ignored (they mean "use config default").
func validateCLIOverrides(hz float64, debugLevel int) error {
	if hz != 0 {
		if math.IsNaN(hz) || math.IsInf(hz, 0) || hz < 1 || hz > 1000 {
			return fmt.Errorf("hz must be between 1 and 1000, got %g", hz)
		}
	}
	if debugLevel > debug.LevelTrace {
		return fmt.Errorf("debug must be between 0 and %d, got %d", debug.LevelTrace, debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the CLI overrides that are set.
func applyOverrides(cfg *config.Config, hz float64, debugLevel int) {
	if hz > 0 {
		cfg.Defaults.CycleHz = hz
	}
	if debugLevel >= 0 {
		cfg.Defaults.DebugLevel = debugLevel
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
