package submitclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ncecere/viberank/internal/models"
)

const DefaultUsageCommand = "npx ccusage@latest --json"

var ErrNoGitHubUser = errors.New("could not determine GitHub username; pass --github-user or set git config github.user")

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// CollectUsage runs the usage command, or reads inputPath when set.
func CollectUsage(ctx context.Context, run Runner, command, inputPath string) ([]byte, error) {
	if inputPath != "" {
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return raw, nil
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultUsageCommand)
	}
	out, err := run(ctx, fields[0], fields[1:]...)
	if err != nil {
		return nil, fmt.Errorf("run usage command: %w", err)
	}
	return out, nil
}

// ParseReport decodes the {totals, daily} document. Leading log lines some
// usage tools print before the JSON are skipped.
func ParseReport(raw []byte) (models.Report, []byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return models.Report{}, nil, fmt.Errorf("usage output does not contain JSON")
	}
	body := bytes.TrimSpace(raw[start:])
	var report models.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return models.Report{}, nil, fmt.Errorf("parse usage JSON: %w", err)
	}
	if len(report.Daily) == 0 {
		return models.Report{}, nil, fmt.Errorf("usage JSON has no daily entries")
	}
	return report, body, nil
}

// ResolveGitHubUser returns explicit when set, otherwise the git config
// github.user, then user.name.
func ResolveGitHubUser(ctx context.Context, run Runner, explicit string) (string, error) {
	if user := strings.TrimSpace(explicit); user != "" {
		return user, nil
	}
	for _, key := range []string{"github.user", "user.name"} {
		out, err := run(ctx, "git", "config", "--get", key)
		if err != nil {
			continue
		}
		if user := strings.TrimSpace(string(out)); user != "" {
			return user, nil
		}
	}
	return "", ErrNoGitHubUser
}
