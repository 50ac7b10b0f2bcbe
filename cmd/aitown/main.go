// Command aitown runs the generative-agent town simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/api"
	"github.com/talgya/ai-town/internal/clock"
	"github.com/talgya/ai-town/internal/config"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/entropy"
	"github.com/talgya/ai-town/internal/events"
	"github.com/talgya/ai-town/internal/llm"
	"github.com/talgya/ai-town/internal/memory"
	"github.com/talgya/ai-town/internal/metrics"
	"github.com/talgya/ai-town/internal/persistence"
	"github.com/talgya/ai-town/internal/world"
)

func main() {
	configPath := flag.String("config", "aitown.yaml", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	if err := run(cfg); err != nil {
		slog.Error("aitown failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(lc config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Town map ──────────────────────────────────────────────────────
	townMap, err := world.GenerateTown(world.GenConfig{
		Width:   cfg.Map.Width,
		Height:  cfg.Map.Height,
		Seed:    cfg.Sim.Seed,
		Scenery: cfg.Map.Scenery,
	})
	if err != nil {
		return fmt.Errorf("generate town: %w", err)
	}
	slog.Info("town generated", "width", townMap.Width, "height", townMap.Height, "buildings", len(townMap.Buildings()))

	// ── Storage ───────────────────────────────────────────────────────
	var (
		store memory.Store
		db    *persistence.DB
		sinks persistence.MultiSink
	)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		db, err = persistence.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
		sinks = append(sinks, db)
		slog.Info("database opened", "path", cfg.Storage.SQLitePath)
	case config.BackendRedis:
		rs, err := persistence.NewRedisStore(persistence.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
		slog.Info("redis memory store connected", "addr", cfg.Storage.RedisAddr)
	}
	if cfg.Storage.ArchiveDir != "" {
		archive := persistence.NewEventArchive(cfg.Storage.ArchiveDir)
		defer archive.Close()
		sinks = append(sinks, archive)
	}

	// ── Metrics + LLM ─────────────────────────────────────────────────
	collector := metrics.NewCollector("aitown")
	registry := events.DefaultRegistry()

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		BaseURL:        cfg.LLM.BaseURL,
		CallsPerMinute: cfg.LLM.CallsPerMinute,
		Timeout:        cfg.LLM.Timeout,
		Observe:        collector.LLMCall,
	})
	var decider agents.Decider
	if llmClient.Enabled() {
		decider = llm.NewDecider(llmClient, registry)
		slog.Info("LLM decider enabled", "model", cfg.LLM.Model)
	} else {
		slog.Warn("no LLM API key set, agents use the rule-based planner")
	}

	// ── World ─────────────────────────────────────────────────────────
	clk := clock.NewSim(clock.DefaultStart(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	var sink engine.EventSink
	if len(sinks) > 0 {
		sink = sinks
	}
	w := engine.NewWorld(townMap, clk, engine.Options{
		MaxLiveEvents:       cfg.Sim.MaxLiveEvents,
		HistorySize:         cfg.Sim.HistorySize,
		StepTimeout:         cfg.Sim.StepTimeout,
		Concurrency:         cfg.Sim.Concurrency,
		InteractionRadius:   cfg.Interaction.Radius,
		InteractionCooldown: cfg.Interaction.Cooldown,
		InteractionRate:     cfg.Interaction.Probability,
		Registry:            registry,
		Rand:                entropy.Derive(cfg.Sim.Seed, "world"),
		Recorder:            collector,
		Sink:                sink,
	})

	if err := populate(ctx, cfg, w, db, store, decider, registry); err != nil {
		return err
	}

	if db != nil {
		tick, err := db.LastTick()
		if err != nil {
			return fmt.Errorf("read last tick: %w", err)
		}
		if tick > 0 {
			clk.Restore(tick)
			slog.Info("resuming", "tick", tick, "time", clock.Format(clk.Start(), clk.Now()))
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(w)
	eng.Interval = cfg.Sim.TickInterval
	eng.SetSpeed(cfg.Sim.Speed)
	eng.OnDay = func(uint64) {
		save(ctx, db, w)
		if cfg.LLM.Diary && llmClient.Enabled() {
			writeDiary(ctx, llmClient, db, w)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var srv *api.Server
	if cfg.API.Enabled {
		if cfg.API.AdminKey == "" {
			slog.Warn("no admin key set, admin POST endpoints are disabled")
		}
		srv = &api.Server{
			World:       w,
			Eng:         eng,
			Metrics:     collector,
			Port:        cfg.API.Port,
			AdminKey:    cfg.API.AdminKey,
			CORSOrigins: cfg.API.CORSOrigins,
			Limiter:     api.NewRateLimiter(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst),
		}
		if db != nil {
			srv.Archive = db
		}
		srv.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	}

	fmt.Printf("Town is awake: %d residents. Starting simulation... (Ctrl+C to stop)\n", len(w.Agents()))
	eng.RunSimulation(ctx, cfg.Sim.Duration)

	st := w.Stats()
	fmt.Printf("Simulation finished after %d steps: %d interactions, %d movements, %d conversations.\n",
		st.Ticks, st.TotalInteractions, st.TotalMovements, st.TotalConversations)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown", "error", err)
		}
	}

	slog.Info("final save...")
	save(context.WithoutCancel(ctx), db, w)
	return nil
}

// populate builds residents, hydrates their memories and restores saved state.
func populate(ctx context.Context, cfg *config.Config, w *engine.World, db *persistence.DB,
	store memory.Store, decider agents.Decider, registry *events.Registry) error {

	roster := agents.DefaultRoster()
	count := min(cfg.Sim.Population, cfg.Sim.MaxAgents)
	if len(cfg.Residents) > 0 {
		roster = cfg.Residents
		count = min(len(roster), cfg.Sim.MaxAgents)
	}
	residents := agents.NewSpawner(cfg.Sim.Seed, w.Map).Residents(count, roster)

	var saved map[string]persistence.AgentRecord
	if db != nil {
		var err error
		if saved, err = db.LoadAgents(ctx); err != nil {
			return err
		}
	}

	for _, rc := range residents {
		if rc.PerceptionRadius == 0 {
			rc.PerceptionRadius = cfg.Agent.PerceptionRadius
		}
		if rc.ConversationRadius == 0 {
			rc.ConversationRadius = cfg.Agent.ConversationRadius
		}
		a, err := agents.NewAgent(rc, agents.Deps{
			Clock:         w.Clock(),
			Registry:      registry,
			Rand:          entropy.Derive(cfg.Sim.Seed, "agent/"+rc.ID),
			Map:           w.Map,
			Decider:       decider,
			DecideTimeout: cfg.Agent.DecideTimeout,
			Memory: memory.Options{
				ReflectionThreshold: cfg.Agent.ReflectionThreshold,
				MaxMemories:         cfg.Agent.MemoryCap,
				Clock:               w.Clock(),
				Store:               store,
			},
		})
		if err != nil {
			return fmt.Errorf("create agent %s: %w", rc.ID, err)
		}
		if err := a.Memory().Hydrate(ctx); err != nil {
			return err
		}
		if rec, ok := saved[rc.ID]; ok {
			a.Restore(rec.Position(), rec.Energy, rec.Mood)
		}
		if err := w.AddAgent(a); err != nil {
			return err
		}
		slog.Info("resident ready",
			"id", rc.ID,
			"name", rc.Name,
			"occupation", rc.Occupation,
			"area", rc.Position.Area,
			"memories", a.Memory().Len(),
		)
	}
	return nil
}

func save(ctx context.Context, db *persistence.DB, w *engine.World) {
	if db == nil {
		return
	}
	if err := db.SaveWorldState(ctx, w.Snapshot()); err != nil {
		slog.Error("save failed", "error", err)
	}
}

func writeDiary(ctx context.Context, c *llm.Client, db *persistence.DB, w *engine.World) {
	snap := w.Snapshot()
	day, _, _ := strings.Cut(snap.Clock, ",")
	entry, err := llm.DiaryEntry(ctx, c, day, w.History(500))
	if err != nil {
		slog.Warn("diary entry failed", "error", err)
		return
	}
	if entry == "" {
		return
	}
	slog.Info("town diary", "day", day, "entry", entry)
	if db != nil {
		if err := db.SaveMeta("diary:"+day, entry); err != nil {
			slog.Warn("diary save failed", "error", err)
		}
	}
}
