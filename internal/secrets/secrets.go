package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"ttotp/internal/config"
	"ttotp/internal/otp"
)

// Prefix identifying a provisioning URI in the command output. Lines
// without it are silently ignored.
const uriPrefix = "otpauth://"

var ErrNoTokens = errors.New("no tokens were found when running the given command")

// Fetch runs the configured otp-command once, synchronously, and
// returns its output split into lines. This is the only process
// execution in the program and happens before any entry exists.
func Fetch(ctx context.Context, cfg *config.Config) ([]string, error) {
	var cmd *exec.Cmd
	if cfg.Shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", cfg.Command[0])
	} else {
		cmd = exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	}

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("otp-command failed: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("otp-command failed: %w", err)
	}

	text := strings.ReplaceAll(string(out), "\r\n", "\n")
	return strings.Split(strings.TrimSpace(text), "\n"), nil
}

// Load parses every provisioning line into a specification, keeping
// input order. The first malformed URI aborts the whole batch; a
// partial token list that the user does not notice is worse than a
// hard error at startup.
func Load(lines []string) ([]otp.Spec, error) {
	var specs []otp.Spec
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, uriPrefix) {
			continue
		}
		spec, err := otp.ParseURI(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, ErrNoTokens
	}
	slog.Info("tokens loaded", "count", len(specs))
	return specs, nil
}
