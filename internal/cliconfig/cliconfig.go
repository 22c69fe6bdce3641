// Package cliconfig loads an optional armwalk-config.yml carrying operator
// defaults. A missing file is not an error, and a malformed one degrades to
// defaults with a warning rather than aborting the run.
package cliconfig

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Filename is the config file name looked for next to a scenario and in the
// user config directory.
const Filename = "armwalk-config.yml"

// Config carries operator defaults that CLI flags may override.
type Config struct {
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`
	Color     *bool  `yaml:"color"` // nil means unset; distinguishes from explicit false
}

// Load searches, in order, the directory containing the scenario file and
// os.UserConfigDir()/armwalk/, returning the first Filename found. Load
// never returns an error: a missing file is skipped silently, and a
// malformed file yields the zero Config and a slog.Warn, the same degrade-to-defaults posture the scenario
// loader uses for its own optional inputs.
func Load(scenarioDir string) Config {
	for _, dir := range searchDirs(scenarioDir) {
		path := filepath.Join(dir, Filename)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Warn("malformed site config, using defaults", "path", path, "error", err)
			return Config{}
		}

		slog.Debug("loaded site config", "path", path)
		return cfg
	}
	return Config{}
}

func searchDirs(scenarioDir string) []string {
	dirs := []string{scenarioDir}
	if ucd, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(ucd, "armwalk"))
	}
	return dirs
}
