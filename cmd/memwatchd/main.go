package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"memwatchd/internal/config"
	"memwatchd/internal/guard"
	"memwatchd/internal/httpapi"
	"memwatchd/internal/sysprobe"
	"memwatchd/pkg/types"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseZerologLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// webhookUnloader POSTs {"model_id": id} to the configured endpoint and treats
// any non-2xx status as a failed unload.
func webhookUnloader(url string) guard.UnloadFunc {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context, modelID string) error {
		body, _ := json.Marshal(map[string]string{"model_id": modelID})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unload webhook returned %s", resp.Status)
		}
		return nil
	}
}

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("MEMWATCHD_ADDR", ":8090"), "HTTP listen address, e.g. :8090")
	configPath := flag.String("config", envOr("MEMWATCHD_CONFIG", ""), "Path to config file (.yaml/.json/.toml)")
	sampleMS := flag.Int("sample-interval-ms", envOrInt("MEMWATCHD_SAMPLE_INTERVAL_MS", 0), "Memory sample interval in milliseconds (0=default 5000)")
	budgetMB := flag.Int("model-budget-mb", envOrInt("MEMWATCHD_MODEL_BUDGET_MB", 0), "Model memory budget in MB (0=unlimited)")
	stateFile := flag.String("state-file", envOr("MEMWATCHD_STATE_FILE", ""), "Path for persisted model metadata (empty=disabled)")
	unloadWebhook := flag.String("unload-webhook", envOr("MEMWATCHD_UNLOAD_WEBHOOK", ""), "URL POSTed to release a model (empty=unloads fail)")
	disableGPU := flag.Bool("disable-gpu", os.Getenv("MEMWATCHD_DISABLE_GPU") == "1", "Skip GPU memory probing")
	logLevel := flag.String("log-level", envOr("MEMWATCHD_LOG_LEVEL", "info"), "Log level: trace|debug|info|warn|error|off")
	corsOrigins := flag.String("cors-origins", envOr("MEMWATCHD_CORS_ORIGINS", ""), "Comma-separated allowed CORS origins (empty=CORS disabled)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "memwatchd").Logger()

	var fileCfg config.Config
	if *configPath != "" {
		var err error
		fileCfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
		}
		if err := config.Validate(fileCfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("invalid config")
		}
	}

	// Flags win over the config file; the config file wins over defaults.
	if fileCfg.Addr != "" && *addr == ":8090" {
		*addr = fileCfg.Addr
	}
	if fileCfg.SampleIntervalMS > 0 && *sampleMS == 0 {
		*sampleMS = fileCfg.SampleIntervalMS
	}
	if fileCfg.ModelBudgetMB > 0 && *budgetMB == 0 {
		*budgetMB = fileCfg.ModelBudgetMB
	}
	if fileCfg.StateFile != "" && *stateFile == "" {
		*stateFile = fileCfg.StateFile
	}
	if fileCfg.UnloadWebhook != "" && *unloadWebhook == "" {
		*unloadWebhook = fileCfg.UnloadWebhook
	}
	if fileCfg.DisableGPU {
		*disableGPU = true
	}
	if fileCfg.LogLevel != "" && *logLevel == "info" {
		*logLevel = fileCfg.LogLevel
	}
	log = log.Level(parseZerologLevel(*logLevel))

	var thresholds []types.MemoryThreshold
	hyst := fileCfg.HysteresisPct
	if hyst == 0 {
		hyst = 5
	}
	for _, t := range fileCfg.Thresholds {
		thresholds = append(thresholds, types.MemoryThreshold{
			Level:         t.Level,
			TriggerPct:    t.TriggerPct,
			HysteresisPct: hyst,
		})
	}

	var prober sysprobe.Prober
	if *disableGPU {
		prober = sysprobe.NewWithGPU(nil)
	} else {
		prober = sysprobe.New()
	}

	var unload guard.UnloadFunc
	if *unloadWebhook != "" {
		unload = webhookUnloader(*unloadWebhook)
	}

	gcfg := guard.Config{
		SampleInterval:   time.Duration(*sampleMS) * time.Millisecond,
		Thresholds:       thresholds,
		ModelBudgetBytes: uint64(*budgetMB) << 20,
		PriorityOrder:    guard.PriorityOrder(fileCfg.PriorityOrder),
		StateFile:        *stateFile,
		Prober:           prober,
		Unload:           unload,
		GC:               guard.RuntimeGC{},
		Logger:           log.With().Str("component", "guard").Logger(),
	}

	watchdog, err := guard.New(gcfg)
	if err != nil {
		log.Fatal().Err(err).Msg("construct watchdog")
	}
	guard.SetDefault(watchdog)
	if err := watchdog.Start(); err != nil {
		log.Fatal().Err(err).Msg("start watchdog")
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(baseCtx)
	if origins := splitCSV(*corsOrigins); len(origins) > 0 || fileCfg.CORSEnabled {
		if len(origins) == 0 {
			origins = fileCfg.CORSOrigins
		}
		httpapi.SetCORSOptions(true, origins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"},
			[]string{"Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(watchdog)}

	go func() {
		log.Info().Str("addr", *addr).Msg("memwatchd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	watchdog.Shutdown()
}
