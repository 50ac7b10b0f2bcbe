// Package config loads town settings: defaults, then a YAML file, then
// environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/ai-town/internal/agents"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full process configuration.
type Config struct {
	Sim         SimConfig         `yaml:"sim" env:"SIM"`
	Agent       AgentConfig       `yaml:"agent" env:"AGENT"`
	Interaction InteractionConfig `yaml:"interaction" env:"INTERACTION"`
	Map         MapConfig         `yaml:"map" env:"MAP"`
	Storage     StorageConfig     `yaml:"storage" env:"STORAGE"`
	LLM         LLMConfig         `yaml:"llm" env:"LLM"`
	API         APIConfig         `yaml:"api" env:"API"`
	Log         LogConfig         `yaml:"log" env:"LOG"`

	// Residents overrides the built-in roster. File only.
	Residents []agents.Config `yaml:"residents" env:"-"`
}

// SimConfig drives the step loop.
type SimConfig struct {
	Seed          int64         `yaml:"seed" env:"SEED"`
	TickInterval  time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	Speed         float64       `yaml:"speed" env:"SPEED"`
	Duration      time.Duration `yaml:"duration" env:"DURATION"` // simulated; 0 runs until stopped
	Population    int           `yaml:"population" env:"POPULATION"`
	MaxAgents     int           `yaml:"max_agents" env:"MAX_AGENTS"`
	MaxLiveEvents int           `yaml:"max_live_events" env:"MAX_LIVE_EVENTS"`
	HistorySize   int           `yaml:"history_size" env:"HISTORY_SIZE"`
	StepTimeout   time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	Concurrency   int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// AgentConfig holds per-agent cognition tunables.
type AgentConfig struct {
	ReflectionThreshold float64       `yaml:"reflection_threshold" env:"REFLECTION_THRESHOLD"`
	PerceptionRadius    float64       `yaml:"perception_radius" env:"PERCEPTION_RADIUS"`
	ConversationRadius  float64       `yaml:"conversation_radius" env:"CONVERSATION_RADIUS"`
	MemoryCap           int           `yaml:"memory_cap" env:"MEMORY_CAP"`
	DecideTimeout       time.Duration `yaml:"decide_timeout" env:"DECIDE_TIMEOUT"`
}

// InteractionConfig tunes automatic greetings.
type InteractionConfig struct {
	Radius      float64       `yaml:"radius" env:"RADIUS"`
	Cooldown    time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	Probability float64       `yaml:"probability" env:"PROBABILITY"`
}

type MapConfig struct {
	Width   int     `yaml:"width" env:"WIDTH"`
	Height  int     `yaml:"height" env:"HEIGHT"`
	Scenery float64 `yaml:"scenery" env:"SCENERY"`
}

// Storage backends.
const (
	BackendNone   = "none"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type StorageConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	ArchiveDir    string `yaml:"archive_dir" env:"ARCHIVE_DIR"` // empty disables the archive
}

type LLMConfig struct {
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	Model          string        `yaml:"model" env:"MODEL"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	CallsPerMinute int           `yaml:"calls_per_minute" env:"CALLS_PER_MINUTE"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Diary          bool          `yaml:"diary" env:"DIARY"`
}

type APIConfig struct {
	Enabled        bool     `yaml:"enabled" env:"ENABLED"`
	Port           int      `yaml:"port" env:"PORT"`
	AdminKey       string   `yaml:"admin_key" env:"ADMIN_KEY"`
	CORSOrigins    []string `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Loader builds a Config from its sources.
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "AI_TOWN", lookupEnv: os.LookupEnv}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnv replaces the environment lookup, for tests.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load applies defaults, the file, the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// Validate reports the first invalid setting, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	check := func(ok bool, format string, args ...any) error {
		if ok {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	for _, err := range []error{
		check(c.Sim.TickInterval >= 0, "sim.tick_interval must not be negative"),
		check(c.Sim.Speed >= 0, "sim.speed must not be negative"),
		check(c.Sim.Duration >= 0, "sim.duration must not be negative"),
		check(c.Sim.MaxAgents > 0, "sim.max_agents must be positive"),
		check(c.Sim.Population >= 0, "sim.population must not be negative"),
		check(c.Sim.MaxLiveEvents > 0, "sim.max_live_events must be positive"),
		check(c.Sim.HistorySize > 0, "sim.history_size must be positive"),
		check(c.Agent.ReflectionThreshold > 0, "agent.reflection_threshold must be positive"),
		check(c.Agent.PerceptionRadius > 0, "agent.perception_radius must be positive"),
		check(c.Agent.ConversationRadius > 0, "agent.conversation_radius must be positive"),
		check(c.Agent.MemoryCap >= 0, "agent.memory_cap must not be negative"),
		check(c.Interaction.Probability >= 0 && c.Interaction.Probability <= 1, "interaction.probability must be in [0,1]"),
		check(c.Interaction.Radius >= 0, "interaction.radius must not be negative"),
		check(c.Map.Width > 0 && c.Map.Height > 0, "map dimensions must be positive"),
		check(c.Map.Scenery >= 0 && c.Map.Scenery < 1, "map.scenery must be in [0,1)"),
		check(c.Storage.Backend == BackendNone || c.Storage.Backend == BackendSQLite || c.Storage.Backend == BackendRedis,
			"storage.backend %q is not one of none, sqlite, redis", c.Storage.Backend),
		check(c.Storage.Backend != BackendSQLite || c.Storage.SQLitePath != "", "storage.sqlite_path is required for sqlite"),
		check(c.Storage.Backend != BackendRedis || c.Storage.RedisAddr != "", "storage.redis_addr is required for redis"),
		check(c.LLM.CallsPerMinute > 0, "llm.calls_per_minute must be positive"),
		check(!c.API.Enabled || (c.API.Port > 0 && c.API.Port < 65536), "api.port %d out of range", c.API.Port),
		check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q is not text or json", c.Log.Format),
	} {
		if err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(c.Residents))
	for i, r := range c.Residents {
		if r.ID == "" || r.Name == "" {
			return fmt.Errorf("%w: residents[%d] needs id and name", ErrInvalid, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate resident %q", ErrInvalid, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// MustLoad loads from path with the default prefix and panics on error.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}
