package config

import (
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/llm"
	"github.com/talgya/ai-town/internal/memory"
)

// Default returns a complete configuration for the standard three-resident town.
func Default() *Config {
	return &Config{
		Sim:         DefaultSimConfig(),
		Agent:       DefaultAgentConfig(),
		Interaction: DefaultInteractionConfig(),
		Map:         MapConfig{Width: 100, Height: 100},
		Storage:     DefaultStorageConfig(),
		LLM:         DefaultLLMConfig(),
		API:         DefaultAPIConfig(),
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Seed:          42,
		TickInterval:  time.Second,
		Speed:         1,
		Population:    3,
		MaxAgents:     20,
		MaxLiveEvents: 100,
		HistorySize:   1000,
		StepTimeout:   10 * time.Second,
	}
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ReflectionThreshold: memory.DefaultReflectionThreshold,
		PerceptionRadius:    agents.DefaultPerceptionRadius,
		ConversationRadius:  agents.DefaultConversationRadius,
		MemoryCap:           1000,
		DecideTimeout:       agents.DefaultDecideTimeout,
	}
}

func DefaultInteractionConfig() InteractionConfig {
	return InteractionConfig{
		Radius:      2.0,
		Cooldown:    10 * time.Minute,
		Probability: 0.08,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:    BackendSQLite,
		SQLitePath: "data/aitown.db",
		RedisAddr:  "localhost:6379",
		ArchiveDir: "data/events",
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:          llm.DefaultModel,
		BaseURL:        llm.DefaultBaseURL,
		CallsPerMinute: 20,
		Timeout:        30 * time.Second,
	}
}

func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Enabled:        true,
		Port:           8080,
		CORSOrigins:    []string{"http://localhost:5173", "http://localhost:3000"},
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}
