// Package config loads the autotuner configuration: the parameter space,
// the harness invocation and where results go.
package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/deck"
	"github.com/chkao831/Autotuning/internal/fsutil"
	"github.com/chkao831/Autotuning/internal/sweep"
)

// Sweep modes.
const (
	ModeGrid   = "grid"
	ModeRandom = "random"
)

// Defaults applied by the Get* accessors.
const (
	DefaultMode        = ModeGrid
	DefaultSamples     = 10
	DefaultRounds      = 1
	DefaultCommand     = "ctest"
	DefaultLabel       = "tune-gpu"
	DefaultTimeout     = 90 * time.Second
	DefaultSetupLabel  = "pop"
	DefaultSetupMarker = "mesh-pop-wdg"
	DefaultLastLog     = "Testing/Temporary/LastTest.log"
	DefaultConvert     = "python ctest2json.py"
	DefaultMetadata    = "CTestTestfile.cmake"
	DefaultHistory     = "autotune_history.db"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// TuneConfig is the root configuration. Optional fields are pointers so an
// omitted key falls back to the default returned by its Get* method.
type TuneConfig struct {
	Deck    *string `yaml:"deck,omitempty" json:"deck,omitempty"`
	Mode    *string `yaml:"mode,omitempty" json:"mode,omitempty"`
	Samples *int    `yaml:"samples,omitempty" json:"samples,omitempty"`
	Seed    *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	Rounds  *int    `yaml:"rounds,omitempty" json:"rounds,omitempty"`
	Output  *string `yaml:"output,omitempty" json:"output,omitempty"`

	Groups []sweep.GroupSpec `yaml:"groups" json:"groups"`

	Harness   HarnessConfig   `yaml:"harness,omitempty" json:"harness,omitempty"`
	Artifacts ArtifactsConfig `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Metric    MetricConfig    `yaml:"metric,omitempty" json:"metric,omitempty"`

	// DeckPath overrides the slash-separated path to the MueLu factories.
	DeckPath *string `yaml:"deck_path,omitempty" json:"deck_path,omitempty"`
	// History is the nightly sqlite database.
	History   *string `yaml:"history,omitempty" json:"history,omitempty"`
	ChartHTML *string `yaml:"chart_html,omitempty" json:"chart_html,omitempty"`
	ChartPNG  *string `yaml:"chart_png,omitempty" json:"chart_png,omitempty"`
}

// HarnessConfig describes how ctest is invoked.
type HarnessConfig struct {
	Command     *string `yaml:"command,omitempty" json:"command,omitempty"`
	Label       *string `yaml:"label,omitempty" json:"label,omitempty"`
	Timeout     *string `yaml:"timeout,omitempty" json:"timeout,omitempty"` // duration string like "90s"
	SetupLabel  *string `yaml:"setup_label,omitempty" json:"setup_label,omitempty"`
	SetupMarker *string `yaml:"setup_marker,omitempty" json:"setup_marker,omitempty"`
	LastLog     *string `yaml:"last_log,omitempty" json:"last_log,omitempty"`
	Convert     *string `yaml:"convert,omitempty" json:"convert,omitempty"`
	// Metadata is the CTestTestfile.cmake listing used to resolve Case.
	Metadata *string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	// Case skips resolution when set.
	Case *string `yaml:"case,omitempty" json:"case,omitempty"`
}

// ArtifactsConfig overrides the artifact name patterns.
type ArtifactsConfig struct {
	Report   *string `yaml:"report,omitempty" json:"report,omitempty"`
	Log      *string `yaml:"log,omitempty" json:"log,omitempty"`
	DeckCopy *string `yaml:"deck_copy,omitempty" json:"deck_copy,omitempty"`
	Best     *string `yaml:"best,omitempty" json:"best,omitempty"`
}

// MetricConfig overrides the timers read from reports.
type MetricConfig struct {
	Primary []string `yaml:"primary,omitempty" json:"primary,omitempty"`
	Total   *string  `yaml:"total,omitempty" json:"total,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrUint64(v uint64) *uint64 { return &v }

// EmptyTuneConfig returns a TuneConfig with every optional field unset.
func EmptyTuneConfig() *TuneConfig {
	return &TuneConfig{}
}

// LoadTuneConfig loads a TuneConfig from a YAML or JSON file.
// The file must have a .yaml, .yml or .json extension and be under 1MB.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadTuneConfig(fsys fsutil.FileSystem, path string) (*TuneConfig, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseTuneConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// ParseTuneConfig decodes and validates a configuration document.
func ParseTuneConfig(data []byte) (*TuneConfig, error) {
	cfg := EmptyTuneConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. Groups are only
// compiled when present so a config may carry harness settings alone.
func (c *TuneConfig) Validate() error {
	if c.Mode != nil && *c.Mode != ModeGrid && *c.Mode != ModeRandom {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeGrid, ModeRandom, *c.Mode)
	}
	if c.Samples != nil && *c.Samples < 1 {
		return fmt.Errorf("samples must be positive, got %d", *c.Samples)
	}
	if c.Rounds != nil && *c.Rounds < 1 {
		return fmt.Errorf("rounds must be positive, got %d", *c.Rounds)
	}
	if c.Harness.Timeout != nil && *c.Harness.Timeout != "" {
		d, err := time.ParseDuration(*c.Harness.Timeout)
		if err != nil {
			return fmt.Errorf("invalid harness timeout '%s': %w", *c.Harness.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("harness timeout must be non-negative, got %s", d)
		}
	}
	if c.Harness.Label != nil && strings.TrimSpace(*c.Harness.Label) == "" {
		return fmt.Errorf("harness label must not be empty")
	}
	if c.DeckPath != nil {
		if _, err := deck.ParsePath(*c.DeckPath); err != nil {
			return fmt.Errorf("invalid deck_path: %w", err)
		}
	}
	if len(c.Groups) > 0 {
		if _, err := c.CompileGroups(); err != nil {
			return err
		}
	}
	if err := c.artifacts("autotune").Validate(); err != nil {
		return err
	}
	return nil
}

// CompileGroups validates and expands the parameter space.
func (c *TuneConfig) CompileGroups() ([]sweep.Group, error) {
	return sweep.CompileGroups(c.Groups)
}

func (c *TuneConfig) GetDeck() string {
	if c.Deck == nil {
		return ""
	}
	return *c.Deck
}

func (c *TuneConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return DefaultMode
	}
	return *c.Mode
}

func (c *TuneConfig) GetSamples() int {
	if c.Samples == nil {
		return DefaultSamples
	}
	return *c.Samples
}

// GetSeed returns nil when no seed is configured, meaning a time-based seed.
func (c *TuneConfig) GetSeed() *uint64 {
	return c.Seed
}

func (c *TuneConfig) GetRounds() int {
	if c.Rounds == nil {
		return DefaultRounds
	}
	return *c.Rounds
}

// GetOutput returns the CSV path, defaulting to <stem>.csv.
func (c *TuneConfig) GetOutput(stem string) string {
	if c.Output == nil || *c.Output == "" {
		return stem + ".csv"
	}
	return *c.Output
}

// GetDeckPath returns the MueLu factories path.
func (c *TuneConfig) GetDeckPath() deck.Path {
	if c.DeckPath == nil {
		return deck.DefaultFactoriesPath
	}
	p, err := deck.ParsePath(*c.DeckPath)
	if err != nil {
		return deck.DefaultFactoriesPath // default on parse error
	}
	return p
}

func (c *TuneConfig) GetHistory() string {
	if c.History == nil || *c.History == "" {
		return DefaultHistory
	}
	return *c.History
}

func (c *TuneConfig) GetChartHTML() string {
	if c.ChartHTML == nil {
		return ""
	}
	return *c.ChartHTML
}

func (c *TuneConfig) GetChartPNG() string {
	if c.ChartPNG == nil {
		return ""
	}
	return *c.ChartPNG
}

// GetMetric returns the configured metric over ctest.DefaultMetric.
func (c *TuneConfig) GetMetric() ctest.Metric {
	m := ctest.DefaultMetric
	if len(c.Metric.Primary) > 0 {
		m.Primary = append([]string(nil), c.Metric.Primary...)
	}
	if c.Metric.Total != nil && *c.Metric.Total != "" {
		m.Total = *c.Metric.Total
	}
	return m
}

// Artifacts returns the artifact layout for a deck stem in dir.
func (c *TuneConfig) Artifacts(dir, stem string) ctest.Artifacts {
	a := c.artifacts(stem)
	a.Dir = dir
	return a
}

func (c *TuneConfig) artifacts(stem string) ctest.Artifacts {
	a := ctest.NewArtifacts("", stem)
	if c.Artifacts.Report != nil {
		a.Report = *c.Artifacts.Report
	}
	if c.Artifacts.Log != nil {
		a.Log = *c.Artifacts.Log
	}
	if c.Artifacts.DeckCopy != nil {
		a.DeckCopy = *c.Artifacts.DeckCopy
	}
	if c.Artifacts.Best != nil {
		a.Best = *c.Artifacts.Best
	}
	return a
}

func (h HarnessConfig) GetCommand() string {
	if h.Command == nil || *h.Command == "" {
		return DefaultCommand
	}
	return *h.Command
}

func (h HarnessConfig) GetLabel() string {
	if h.Label == nil {
		return DefaultLabel
	}
	return *h.Label
}

// GetTimeout parses and returns the per-run timeout.
func (h HarnessConfig) GetTimeout() time.Duration {
	if h.Timeout == nil || *h.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(*h.Timeout)
	if err != nil {
		return DefaultTimeout // default on parse error
	}
	return d
}

// GetSetupLabel returns the setup label; an explicit empty string disables
// the setup step.
func (h HarnessConfig) GetSetupLabel() string {
	if h.SetupLabel == nil {
		return DefaultSetupLabel
	}
	return *h.SetupLabel
}

func (h HarnessConfig) GetSetupMarker() string {
	if h.SetupMarker == nil {
		return DefaultSetupMarker
	}
	return *h.SetupMarker
}

func (h HarnessConfig) GetLastLog() string {
	if h.LastLog == nil {
		return DefaultLastLog
	}
	return *h.LastLog
}

// GetConvert returns the conversion command; empty disables it.
func (h HarnessConfig) GetConvert() string {
	if h.Convert == nil {
		return DefaultConvert
	}
	return *h.Convert
}

func (h HarnessConfig) GetMetadata() string {
	if h.Metadata == nil || *h.Metadata == "" {
		return DefaultMetadata
	}
	return *h.Metadata
}

func (h HarnessConfig) GetCase() string {
	if h.Case == nil {
		return ""
	}
	return *h.Case
}
