package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrProfileNotFound = errors.New("profile not found in configuration file")
	ErrMissingCommand  = errors.New("otp-command is missing")
	ErrInvalidCommand  = errors.New("otp-command must be a string or a list of strings")
	ErrInvalidAutoExit = errors.New("auto-exit must be a positive number of seconds")
)

// Config describes how to obtain the provisioning URIs and the
// optional inactivity timeout. The command itself is opaque here; the
// secrets package runs it.
type Config struct {
	// Command in argv form. When Shell is set, Command has one element
	// and is run through `sh -c`.
	Command []string
	Shell   bool

	// AutoExit > 0 enables the inactivity auto-exit.
	AutoExit time.Duration
}

// DefaultPath is the settings file under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "ttotp", "settings.toml")
}

// Load reads the TOML settings file. With a non-empty profile, keys
// are taken from that section; otherwise from the top level.
func Load(path, profile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if profile != "" {
		sub := v.Sub(profile)
		if sub == nil {
			return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, profile)
		}
		v = sub
	}

	cfg := &Config{}

	switch cmd := v.Get("otp-command").(type) {
	case nil:
		return nil, ErrMissingCommand
	case string:
		if cmd == "" {
			return nil, ErrMissingCommand
		}
		cfg.Command = []string{cmd}
		cfg.Shell = true
	case []any:
		for _, item := range cmd {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %v", ErrInvalidCommand, item)
			}
			cfg.Command = append(cfg.Command, s)
		}
		if len(cfg.Command) == 0 {
			return nil, ErrMissingCommand
		}
	case []string:
		if len(cmd) == 0 {
			return nil, ErrMissingCommand
		}
		cfg.Command = cmd
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidCommand, cmd)
	}

	if v.IsSet("auto-exit") {
		seconds := v.GetFloat64("auto-exit")
		if seconds <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAutoExit, v.Get("auto-exit"))
		}
		cfg.AutoExit = time.Duration(seconds * float64(time.Second))
	}

	return cfg, nil
}

// Hint is the guidance text printed when loading fails. Callers exit
// with status 2 after printing it.
func Hint(path string, reason error) string {
	return fmt.Sprintf(`You need to create the configuration file:
    %s

It's a toml file which specifies a command to run to retrieve the list of OTPs.
One way to do this is with the `+"`pass`"+` program (https://www.passwordstore.org/)
`+"`pass`"+` keeps your secrets safe using GPG. Typical contents:

    otp-command = ['pass', 'totp-tokens']

By default, the otp-command in the global section is used. You can have
multiple profiles as configuration file sections, and select one with
`+"`ttotp -profile profile-name`"+`:

    [work]
    otp-command = ['pass', 'totp-tokens-work']

%v
`, path, reason)
}
