// Package config loads the repository-root `.grove.toml` document.
//
// Grounded on the teacher's TOML usage (github.com/BurntSushi/toml appears
// directly in its go.mod) and on the schema in original_source/config.py;
// unknown keys are rejected via toml.MetaData.Undecoded(), matching the
// Python loader's strict dataclass construction.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CascadeTiers lists the four progressive test tiers in ladder order.
var CascadeTiers = [...]string{"local-tests", "contract-tests", "integration-tests", "system-tests"}

type SyncGroup struct {
	Name           string
	URLMatch       string   `toml:"url-match"`
	StandaloneRepo string   `toml:"standalone-repo"`
	CommitMessage  string   `toml:"commit-message"`
	AllowDrift     []string `toml:"allow-drift"`
}

func (g SyncGroup) Message(sha string) string {
	msg := g.CommitMessage
	if msg == "" {
		msg = "chore: sync {group} submodule to {sha}"
	}
	msg = strings.ReplaceAll(msg, "{group}", g.Name)
	msg = strings.ReplaceAll(msg, "{sha}", sha)
	return msg
}

type WorktreeMergeConfig struct {
	TestCommand   string            `toml:"test-command"`
	TestOverrides map[string]string `toml:"test-overrides"`
}

type WorktreeConfig struct {
	CopyVenv bool `toml:"copy-venv"`
}

type CascadeConfig struct {
	LocalTests       *string                       `toml:"local-tests"`
	ContractTests    *string                       `toml:"contract-tests"`
	IntegrationTests *string                       `toml:"integration-tests"`
	SystemTests      *string                       `toml:"system-tests"`
	Overrides        map[string]map[string]string `toml:"overrides"`
}

// GetCommand resolves a tier command for relPath: per-repo override by tier
// name, then root default for the tier, then none (skip). local-tests
// additionally falls back to the worktree-merge default when nothing
// cascade-specific is configured. The repo's own .grove.toml is not
// consulted.
func (c CascadeConfig) GetCommand(tier, relPath string, wtDefault string) (string, bool) {
	if byRepo, ok := c.Overrides[relPath]; ok {
		if cmd, ok := byRepo[tier]; ok {
			return cmd, true
		}
	}

	var dflt *string
	switch tier {
	case "local-tests":
		dflt = c.LocalTests
	case "contract-tests":
		dflt = c.ContractTests
	case "integration-tests":
		dflt = c.IntegrationTests
	case "system-tests":
		dflt = c.SystemTests
	}
	if dflt != nil {
		return *dflt, true
	}

	if tier == "local-tests" && wtDefault != "" {
		return wtDefault, true
	}
	return "", false
}

type AliasConfig map[string]string

type GroveConfig struct {
	SyncGroups    map[string]SyncGroup `toml:"sync-groups"`
	WorktreeMerge WorktreeMergeConfig  `toml:"worktree-merge"`
	Worktree      WorktreeConfig       `toml:"worktree"`
	Cascade       CascadeConfig        `toml:"cascade"`
	Aliases       AliasConfig          `toml:"aliases"`
}

// Load reads .grove.toml from repoRoot. A missing file yields an empty,
// valid GroveConfig (matching the Python loader's "return default config"
// path). Any unrecognised top-level or nested key is a load error.
func Load(repoRoot string) (*GroveConfig, error) {
	path := filepath.Join(repoRoot, ".grove.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GroveConfig{SyncGroups: map[string]SyncGroup{}}, nil
		}
		return nil, err
	}

	var raw struct {
		SyncGroups    map[string]SyncGroup `toml:"sync-groups"`
		WorktreeMerge WorktreeMergeConfig   `toml:"worktree-merge"`
		Worktree      WorktreeConfig        `toml:"worktree"`
		Cascade       CascadeConfig         `toml:"cascade"`
		Aliases       AliasConfig           `toml:"aliases"`
	}

	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unrecognised key(s): %s", path, strings.Join(keys, ", "))
	}

	cfg := &GroveConfig{
		SyncGroups:    raw.SyncGroups,
		WorktreeMerge: raw.WorktreeMerge,
		Worktree:      raw.Worktree,
		Cascade:       raw.Cascade,
		Aliases:       raw.Aliases,
	}
	for name, g := range cfg.SyncGroups {
		g.Name = name
		cfg.SyncGroups[name] = g
	}
	if cfg.SyncGroups == nil {
		cfg.SyncGroups = map[string]SyncGroup{}
	}
	return cfg, nil
}
