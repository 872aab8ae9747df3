// Package env is the Environment: process-wide configuration (home
// directory, cache directory, global prefix, git+file:// base directory)
// and the structured logger every other component writes through.
package env

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

// Config is the explicit-struct-fields layer of the configuration
// cascade: explicit field, then the matching environment variable, then
// a hardcoded default.
type Config struct {
	Home         string // defaults to <user-home>/.gpk, overridable
	GlobalPrefix string // explicit override of the global install prefix
	BaseDir      string // base for relative git+file:// templates
	LogLevel     string // debug, info, warn, error; default info

	Stdout io.Writer
	Stderr io.Writer
}

// Environment is the resolved, ready-to-use process-wide configuration.
type Environment struct {
	Home         string
	GlobalPrefix string
	BaseDir      string

	Stdout io.Writer
	Stderr io.Writer
	Log    *log.Logger
}

// New resolves cfg into an Environment: explicit field first, then
// environment variable, then hardcoded default.
func New(cfg Config) (*Environment, error) {
	e := &Environment{
		Stdout: cfg.Stdout,
		Stderr: cfg.Stderr,
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}

	home := cfg.Home
	if home == "" {
		home = os.Getenv("GPK_HOME")
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = filepath.Join(userHome, ".gpk")
	}
	e.Home = home

	e.BaseDir = cfg.BaseDir
	if e.BaseDir == "" {
		e.BaseDir = os.Getenv("GPK_BASE_DIR")
	}

	prefix, err := resolveGlobalPrefix(cfg.GlobalPrefix)
	if err != nil {
		return nil, err
	}
	e.GlobalPrefix = prefix

	level := cfg.LogLevel
	if level == "" {
		level = os.Getenv("GPK_LOG_LEVEL")
	}
	e.Log = log.NewWithOptions(e.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           parseLevel(level),
	})

	return e, nil
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// resolveGlobalPrefix applies the global-prefix precedence: explicit
// configuration, then PREFIX env, then the runtime installation
// prefix (the parent of the running binary on non-Windows, the binary's
// own directory on Windows), optionally prefixed by DESTDIR.
func resolveGlobalPrefix(explicit string) (string, error) {
	prefix := explicit
	if prefix == "" {
		prefix = os.Getenv("PREFIX")
	}
	if prefix == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", err
		}
		exe, err = filepath.EvalSymlinks(exe)
		if err != nil {
			return "", err
		}
		binDir := filepath.Dir(exe)
		if runtime.GOOS == "windows" {
			prefix = binDir
		} else {
			prefix = filepath.Dir(binDir)
		}
	}
	if destdir := os.Getenv("DESTDIR"); destdir != "" {
		prefix = filepath.Join(destdir, prefix)
	}
	return prefix, nil
}

// CacheDir returns <home>/cache, the root the Verified Cache is keyed
// under.
func (e *Environment) CacheDir() string {
	return filepath.Join(e.Home, "cache")
}

// GlobalLibRoot returns the global library root: <prefix>/lib/node_modules
// on non-Windows, <prefix>/node_modules on Windows.
func (e *Environment) GlobalLibRoot() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.GlobalPrefix, "node_modules")
	}
	return filepath.Join(e.GlobalPrefix, "lib", "node_modules")
}

// GlobalBinRoot returns the global bin root: <prefix>/bin on non-Windows,
// <prefix> on Windows.
func (e *Environment) GlobalBinRoot() string {
	if runtime.GOOS == "windows" {
		return e.GlobalPrefix
	}
	return filepath.Join(e.GlobalPrefix, "bin")
}

// GlobalLibParent returns the directory the Placement Planner should
// treat as the sole ancestor-chain root in global mode: the parent of
// GlobalLibRoot(), i.e. the directory whose node_modules child IS the
// global library root.
func (e *Environment) GlobalLibParent() string {
	return filepath.Dir(e.GlobalLibRoot())
}
