// Command capgen serves the video-to-subtitle pipeline's HTTP control
// surface. It wires the model manager's four engine slots, starts the job
// queue's worker pool, restores any jobs left over from a previous crash,
// and serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/capgen-ai/capgen/internal/checkpoint"
	"github.com/capgen-ai/capgen/internal/config"
	"github.com/capgen-ai/capgen/internal/engine"
	"github.com/capgen-ai/capgen/internal/eventbus"
	"github.com/capgen-ai/capgen/internal/fuse"
	"github.com/capgen-ai/capgen/internal/httpapi"
	"github.com/capgen-ai/capgen/internal/hwprobe"
	"github.com/capgen-ai/capgen/internal/jobqueue"
	"github.com/capgen-ai/capgen/internal/modelmanager"
	"github.com/capgen-ai/capgen/internal/pipeline"
	"github.com/capgen-ai/capgen/internal/telemetry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	flags := parseServeFlags(os.Args[1:])
	tuning := config.Load(flags.config)
	if err := tuning.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	endpoints := loadModelEndpoints()
	hw := hwprobe.Detect()

	slog.Info("hardware detected", "accelerator", hw.AcceleratorName, "tier", hw.SeparatorTier, "concurrency", hw.Concurrency)

	engines, loadables, llmEngine := initEngines(endpoints, tuning)
	manager := modelmanager.New(loadables, modelmanager.DefaultConflicts())

	if err := llmEngine.Load(context.Background()); err != nil {
		slog.Warn("ollama preload failed", "error", err)
	}

	checkpointStore := checkpoint.New(flags.jobsDir)
	bus := eventbus.New()

	var recorder *telemetry.Recorder
	if endpoints.postgresURL != "" {
		store, err := telemetry.Open(endpoints.postgresURL)
		if err != nil {
			slog.Error("telemetry store open failed", "error", err)
		} else {
			recorder = telemetry.NewRecorder(store)
			slog.Info("telemetry enabled", "postgres", endpoints.postgresURL)
		}
	}

	pl := pipeline.New(pipeline.Config{
		Engines:        engines,
		Models:         manager,
		Checkpoint:     checkpointStore,
		Telemetry:      recorder,
		Emit:           bus,
		Presets:        tuning.PresetTable(),
		JobsDir:        flags.jobsDir,
		FuseConfig:     fuse.DefaultConfig(),
		SplitConfig:    pipeline.DefaultSplitConfig(),
		PatchThreshold: tuning.PatchThreshold,
	})

	concurrency := hw.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	queue := jobqueue.New(concurrency, pl.Run, bus, checkpointStore.Save)
	restoreJobs(queue, checkpointStore)

	server := &httpapi.Server{
		Queue:      queue,
		Checkpoint: checkpointStore,
		Bus:        bus,
		Hardware:   hw,
		JobsDir:    flags.jobsDir,
		InputDir:   flags.inputDir,
	}

	addr := flags.host + ":" + flags.port
	srv := &http.Server{Addr: addr, Handler: server.Routes()}

	go awaitShutdown(srv, llmEngine)

	slog.Info("capgen starting", "addr", addr, "jobs_dir", flags.jobsDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("capgen stopped")
}

// restoreJobs re-enters every non-terminal job on disk into the queue: a
// PROCESSING job becomes QUEUED (its worker goroutine died with the
// process), a PAUSED job stays paused.
func restoreJobs(queue *jobqueue.Queue, store *checkpoint.Store) {
	jobs, err := store.LoadAll()
	if err != nil {
		slog.Warn("checkpoint restore failed", "error", err)
		return
	}
	restored := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		queue.Restore(job)
		restored++
	}
	if restored > 0 {
		slog.Info("restored jobs from checkpoint", "count", restored)
	}
}

func vadConfig(t config.Tuning) engine.EnergyVADConfig {
	cfg := engine.DefaultEnergyVADConfig()
	cfg.SpeechThresholdDB = t.VADSpeechThresholdDB
	return cfg
}

// initEngines constructs every Loadable engine adapter once and returns
// both the pipeline.Engines bundle the runner drives and the modelmanager
// slot map the Model Manager acquires/releases — the same instances, so
// acquiring a slot and calling through Engines always reach the same
// adapter.
func initEngines(endpoints modelEndpoints, t config.Tuning) (pipeline.Engines, map[modelmanager.Slot]modelmanager.Loadable, *engine.AgentLLMEngine) {
	vad := engine.NewEnergyVAD(vadConfig(t))
	separator := engine.NewTieredSeparator(endpoints.separatorHeavyURL, t.ASRPoolSize)
	primary := engine.NewHTTPPrimaryASR(endpoints.whisperPrimaryURL, t.ASRPoolSize)
	secondary := engine.NewHTTPSecondaryASR(endpoints.whisperSecondaryURL, t.ASRPoolSize)

	agentLLM := initLLM(endpoints, t)
	llmEngine := engine.NewOllamaAgentLLMEngine(agentLLM, t.OllamaModel, endpoints.ollamaURL)

	engines := pipeline.Engines{
		VAD:          vad,
		Separator:    separator,
		PrimaryASR:   primary,
		SecondaryASR: secondary,
		LLM:          llmEngine,
	}
	loadables := map[modelmanager.Slot]modelmanager.Loadable{
		modelmanager.SlotVAD:          vad,
		modelmanager.SlotSeparator:    separator,
		modelmanager.SlotPrimaryASR:   primary,
		modelmanager.SlotSecondaryASR: secondary,
	}
	return engines, loadables, llmEngine
}

// initLLM registers ollama (always) plus openai/anthropic when their API
// keys are present, via agents.NewOpenAIProvider: every backend speaks the
// OpenAI chat wire format, so ollama and anthropic are reached through
// OpenAI-compatible endpoints.
func initLLM(endpoints modelEndpoints, t config.Tuning) *pipeline.AgentLLM {
	router := pipeline.NewAgentLLM("ollama", t.LLMMaxTokens)
	router.Register("ollama", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
		BaseURL:      param.NewOpt(endpoints.ollamaURL + "/v1/"),
		APIKey:       param.NewOpt("ollama"),
		UseResponses: param.NewOpt(false),
	}), t.OllamaModel)
	if endpoints.openaiAPIKey != "" {
		router.Register("openai", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(t.OpenAIURL + "/v1/"),
			APIKey:       param.NewOpt(endpoints.openaiAPIKey),
			UseResponses: param.NewOpt(true),
		}), t.OpenAIModel)
	}
	if endpoints.anthropicAPIKey != "" {
		router.Register("anthropic", agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(t.AnthropicURL + "/v1/"),
			APIKey:       param.NewOpt(endpoints.anthropicAPIKey),
			UseResponses: param.NewOpt(false),
		}), t.AnthropicModel)
	}
	// ollama-direct bypasses the agents SDK entirely (plain HTTP against
	// Ollama's own /api/chat), for operators who'd rather not carry the SDK
	// dependency in their Ollama path.
	if endpoints.ollamaDirect {
		direct := pipeline.NewOllamaLLMClient(endpoints.ollamaURL, t.OllamaModel, "", t.LLMMaxTokens, t.LLMPoolSize)
		router.RegisterRaw("ollama-direct", direct, t.OllamaModel)
	}
	return router
}

func awaitShutdown(srv *http.Server, llmEngine *engine.AgentLLMEngine) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := llmEngine.Unload(ctx); err != nil {
		slog.Warn("ollama unload", "error", err)
	}
	srv.Shutdown(ctx)
}
