package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (mode changes, configuration)
	LevelLive    = 2 // Live info (commands received, servo outputs)
	LevelVerbose = 3 // Verbose (per-cycle angles, stabilization details)
	LevelTrace   = 4 // Trace (GPIO/PWM, very low level)
)

var (
	level  int
	out    io.Writer = os.Stdout
	logger *log.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (mode, configuration, errors)
// 2 = live info (commands, servo outputs)
// 3 = verbose (per-cycle angles, stabilization)
// 4 = trace (GPIO, PWM duty cycles)
func Init(debugLevel int) {
	level = debugLevel
	logger = nil
	if level > LevelOff {
		logger = log.New(out, "[MountGo] ", log.LstdFlags|log.Lmicroseconds)
	}
}

// SetOutput redirects debug output, e.g. to mirror it on the web status stream.
func SetOutput(w io.Writer) {
	out = w
	if logger != nil {
		logger.SetOutput(w)
	}
}

func enabled(min int) bool {
	return logger != nil && level >= min
}

func logAt(min int, format string, args ...interface{}) {
	if enabled(min) {
		logger.Printf(format, args...)
	}
}

func banner(min int, rule, title string) {
	if enabled(min) {
		line := strings.Repeat(rule, 40)
		logger.Printf("%s\n  %s\n%s", line, title, line)
	}
}

// Info prints important information such as configuration and mode changes.
func Info(format string, args ...interface{}) { logAt(LevelInfo, "[INFO] "+format, args...) }

// Value prints a named startup value.
func Value(name string, value interface{}) { logAt(LevelInfo, "[INFO]   %s = %v", name, value) }

// Mode prints a mount mode change.
func Mode(from, to string) { logAt(LevelInfo, "[INFO] Mount mode: %s -> %s", from, to) }

// Error prints err at info level.
func Error(err error) { logAt(LevelInfo, "[ERROR] %v", err) }

// Summary prints a banner.
func Summary(title string) { banner(LevelInfo, "═", title) }

// Live prints what the mount is doing right now.
func Live(format string, args ...interface{}) { logAt(LevelLive, "[LIVE] "+format, args...) }

// Command prints an inbound mount command.
func Command(kind string, v interface{}) { logAt(LevelLive, "[LIVE] Command %s: %+v", kind, v) }

// Servo prints an actuator output in tenths of a degree.
func Servo(axis string, angle, min, max int) {
	logAt(LevelLive, "[LIVE] Servo %s: %d [%d..%d]", axis, angle, min, max)
}

// Verbose prints per-cycle details.
func Verbose(format string, args ...interface{}) { logAt(LevelVerbose, "[VERBOSE] "+format, args...) }

// Angles prints a roll/tilt/pan triple in degrees.
func Angles(name string, roll, tilt, pan float64) {
	logAt(LevelVerbose, "[VERBOSE] %s: roll=%.2f tilt=%.2f pan=%.2f", name, roll, tilt, pan)
}

func PrintStruct(name string, v interface{}) { logAt(LevelVerbose, "[VERBOSE] %s: %+v", name, v) }

func Section(name string) { banner(LevelVerbose, "━", name) }

func Step(num int, description string) {
	logAt(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// Trace prints low level hardware activity.
func Trace(format string, args ...interface{}) { logAt(LevelTrace, "[TRACE] "+format, args...) }

// GPIO prints a GPIO operation.
func GPIO(operation string, pin int, value interface{}) {
	logAt(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// Fmt formats only when trace output is on, so hot GPIO paths skip the allocation.
func Fmt(format string, args ...interface{}) string {
	if !enabled(LevelTrace) {
		return ""
	}
	return fmt.Sprintf(format, args...)
}
