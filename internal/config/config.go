// internal/config/config.go
//
// This package handles configuration and the .linaje directory structure.
// Every family tree managed by linaje lives in a .linaje/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// LinajeDir is the name of the directory we create in each project
	LinajeDir = ".linaje"

	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"

	defaultMaxDepth  = 4
	defaultDebounce  = 750 * time.Millisecond
	defaultThreshold = 2.0 / 3.0
	defaultLogLevel  = "info"

	defaultBridgeHost    = "127.0.0.1"
	defaultBridgePort    = 8765
	defaultBridgeBodyKB  = 256
	defaultBridgeTimeout = 15 * time.Second
)

const defaultProjectConfigYAML = `# linaje project configuration
version: 1

# Where the family graph, patterns and ritual sessions are stored.
# backend: json (one file per collection) or sqlite (single database file).
storage:
  backend: json
  dir: data

# Pattern detection walks up to max_depth generations from root_member.
# Leave catalog empty to use the built-in rules.
detection:
  max_depth: 4
  debounce: 750ms
  root_member: ""
  catalog: ""

# Share of anchor phrases a transcript must contain (0-1). Defaults to 2/3
# when unset; individual ritual blocks may require more.
voice:
  # threshold: 0.75
  min_matches: 0

# Extra ritual definitions (*.yaml). Built-in rituals are always available.
rituals:
  definitions_dir: rituals

logging:
  level: info
  json: false

# Local HTTP endpoint that receives transcripts from the recorder.
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
  max_body_kb: 256
  timeout: 15s
`

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// DetectionConfig tunes the pattern engine.
type DetectionConfig struct {
	MaxDepth   int    `yaml:"max_depth"`
	Debounce   string `yaml:"debounce"`
	RootMember string `yaml:"root_member"`
	Catalog    string `yaml:"catalog,omitempty"`
}

// VoiceConfig sets the default anchor requirement.
type VoiceConfig struct {
	Threshold  float64 `yaml:"threshold"`
	MinMatches int     `yaml:"min_matches"`
}

// RitualsConfig points at user ritual definitions.
type RitualsConfig struct {
	DefinitionsDir string `yaml:"definitions_dir"`
}

// LoggingConfig controls the structured file logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// BridgeConfig configures the transcript bridge.
type BridgeConfig struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	MaxBodyKB int    `yaml:"max_body_kb,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// ProjectConfig models .linaje/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Storage   StorageConfig   `yaml:"storage"`
	Detection DetectionConfig `yaml:"detection"`
	Voice     VoiceConfig     `yaml:"voice"`
	Rituals   RitualsConfig   `yaml:"rituals"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// Config holds the runtime configuration for linaje.
type Config struct {
	// ProjectDir is the directory linaje was run from
	ProjectDir string

	// LinajeProjectDir is ProjectDir/.linaje
	LinajeProjectDir string

	Project ProjectConfig
}

// InitLinajeDir creates the .linaje directory structure in the given project
// directory and writes a commented config when none exists.
//
// Structure created:
// .linaje/
// ├── config.yaml
// ├── data/      <- graph, patterns and sessions
// ├── logs/      <- structured logs
// └── rituals/   <- user ritual definitions
func InitLinajeDir(projectDir string) error {
	linajeDir := filepath.Join(projectDir, LinajeDir)
	dirs := []string{
		filepath.Join(linajeDir, "data"),
		filepath.Join(linajeDir, "logs"),
		filepath.Join(linajeDir, "rituals"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(linajeDir, "config.yaml"))
}

// NewConfig loads .linaje/config.yaml (defaults when missing) and applies
// LINAJE_* environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir:       abs,
		LinajeProjectDir: filepath.Join(abs, LinajeDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.LinajeProjectDir, "logs")
}

// DataDir returns the resolved storage directory.
func (c *Config) DataDir() string {
	return c.Project.Storage.Dir
}

// JournalPath returns the ritual journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LinajeProjectDir, "journal.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.LinajeProjectDir, "config.yaml")
}

// DefinitionsDir returns the directory scanned for extra ritual definitions.
func (c *Config) DefinitionsDir() string {
	return c.Project.Rituals.DefinitionsDir
}

// BridgeTimeout returns the parsed bridge read/write timeout.
func (c *Config) BridgeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Project.Bridge.Timeout)
	if err != nil || d <= 0 {
		return defaultBridgeTimeout
	}
	return d
}

// Debounce returns the parsed detection debounce.
func (c *Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.Project.Detection.Debounce)
	if err != nil || d <= 0 {
		return defaultDebounce
	}
	return d
}

// RootMember returns the member detection walks from.
func (c *Config) RootMember() string {
	return c.Project.Detection.RootMember
}

// SetRootMember updates the detection root and persists the config.
func (c *Config) SetRootMember(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: root member id is required")
	}
	c.Project.Detection.RootMember = id
	return c.saveProjectConfig()
}

// ClearRootMember forgets the detection root, e.g. after its removal.
func (c *Config) ClearRootMember() error {
	c.Project.Detection.RootMember = ""
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.LinajeProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.LinajeProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() error {
	p := &c.Project
	if value := strings.TrimSpace(os.Getenv("LINAJE_STORAGE")); value != "" {
		p.Storage.Backend = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_MAX_DEPTH")); value != "" {
		depth, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: LINAJE_MAX_DEPTH: %w", err)
		}
		p.Detection.MaxDepth = depth
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_VOICE_THRESHOLD")); value != "" {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("config: LINAJE_VOICE_THRESHOLD: %w", err)
		}
		p.Voice.Threshold = threshold
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_LOG_LEVEL")); value != "" {
		p.Logging.Level = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_BRIDGE_ENABLED")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: LINAJE_BRIDGE_ENABLED: %w", err)
		}
		p.Bridge.Enabled = &enabled
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_BRIDGE_HOST")); value != "" {
		p.Bridge.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("LINAJE_BRIDGE_PORT")); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: LINAJE_BRIDGE_PORT: %w", err)
		}
		p.Bridge.Port = port
	}
	if err := p.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Storage.Backend == "" {
		pc.Storage.Backend = BackendJSON
	}
	if pc.Storage.Dir == "" {
		pc.Storage.Dir = "data"
	}
	if pc.Detection.MaxDepth == 0 {
		pc.Detection.MaxDepth = defaultMaxDepth
	}
	if pc.Detection.Debounce == "" {
		pc.Detection.Debounce = defaultDebounce.String()
	}
	if pc.Voice.Threshold == 0 {
		pc.Voice.Threshold = defaultThreshold
	}
	if pc.Rituals.DefinitionsDir == "" {
		pc.Rituals.DefinitionsDir = "rituals"
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
	if pc.Bridge.Enabled == nil {
		enabled := true
		pc.Bridge.Enabled = &enabled
	}
	if pc.Bridge.Host == "" {
		pc.Bridge.Host = defaultBridgeHost
	}
	if pc.Bridge.Port == 0 {
		pc.Bridge.Port = defaultBridgePort
	}
	if pc.Bridge.MaxBodyKB == 0 {
		pc.Bridge.MaxBodyKB = defaultBridgeBodyKB
	}
	if pc.Bridge.Timeout == "" {
		pc.Bridge.Timeout = defaultBridgeTimeout.String()
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Storage.Backend = strings.ToLower(strings.TrimSpace(pc.Storage.Backend))
	pc.Storage.Dir = resolvePath(base, pc.Storage.Dir)
	pc.Detection.RootMember = strings.TrimSpace(pc.Detection.RootMember)
	pc.Detection.Debounce = strings.TrimSpace(pc.Detection.Debounce)
	pc.Detection.Catalog = resolvePath(base, pc.Detection.Catalog)
	pc.Rituals.DefinitionsDir = resolvePath(base, pc.Rituals.DefinitionsDir)
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	pc.Bridge.Timeout = strings.TrimSpace(pc.Bridge.Timeout)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Storage.Backend {
	case BackendJSON, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be 'json', 'sqlite' or 'memory'")
	}
	if pc.Detection.MaxDepth < 1 {
		return fmt.Errorf("detection.max_depth must be >= 1")
	}
	if d, err := time.ParseDuration(pc.Detection.Debounce); err != nil || d <= 0 {
		return fmt.Errorf("detection.debounce must be a positive duration")
	}
	if pc.Voice.Threshold < 0 || pc.Voice.Threshold > 1 {
		return fmt.Errorf("voice.threshold must be within [0,1]")
	}
	if pc.Voice.MinMatches < 0 {
		return fmt.Errorf("voice.min_matches must be >= 0")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	if pc.Bridge.Port < 1 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be within 1-65535")
	}
	if pc.Bridge.MaxBodyKB < 1 {
		return fmt.Errorf("bridge.max_body_kb must be >= 1")
	}
	if d, err := time.ParseDuration(pc.Bridge.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("bridge.timeout must be a positive duration")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.LinajeProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.LinajeProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure linaje dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
