package session

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spachava753/trialkit/internal/config"
	"github.com/spachava753/trialkit/internal/models"
)

// Load reads a session file and the trial files it references. Relative
// trial paths and stimuli_dir resolve against the session file's directory.
func Load(path string) (models.SessionConfig, []models.TrialConfig, error) {
	cfg, err := config.LoadSessionConfig(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("loading session config: %w", err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return cfg, nil, fmt.Errorf("resolving session directory: %w", err)
	}

	switch {
	case cfg.StimuliDir == "":
		cfg.StimuliDir = baseDir
	case !filepath.IsAbs(cfg.StimuliDir):
		cfg.StimuliDir = filepath.Join(baseDir, cfg.StimuliDir)
	}

	trials, err := config.LoadTimeline(os.DirFS(baseDir), cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("loading timeline: %w", err)
	}

	if sha := resolveGitSHA(baseDir); sha != "" {
		cfg.Revision = &sha
		slog.Debug("session is under version control", "revision", sha)
	}
	return cfg, trials, nil
}

// resolveGitSHA attempts to get the current HEAD commit SHA.
func resolveGitSHA(path string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
