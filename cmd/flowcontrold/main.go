package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/guideline"
	"github.com/aicc2025/ai-native-callcenter/journey"
	"github.com/aicc2025/ai-native-callcenter/loader"
	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/modelmiddleware"
	"github.com/aicc2025/ai-native-callcenter/modelprovider/anthropic"
	"github.com/aicc2025/ai-native-callcenter/modelprovider/openai"
	"github.com/aicc2025/ai-native-callcenter/storage/postgres"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
	"github.com/aicc2025/ai-native-callcenter/toolexec"
	"github.com/aicc2025/ai-native-callcenter/turn"
)

// shutdownGracePeriod bounds how long in-flight turns get to finish before
// the process exits on SIGINT/SIGTERM.
const shutdownGracePeriod = 20 * time.Second

func main() {
	var (
		postgresDSNF   = flag.String("postgres-dsn", os.Getenv("FLOWCONTROL_POSTGRES_DSN"), "Postgres connection string for the durable store")
		redisAddrF     = flag.String("redis-addr", os.Getenv("FLOWCONTROL_REDIS_ADDR"), "Redis address for the Cache Facade (empty uses an in-memory store)")
		journeysDirF   = flag.String("journeys-dir", "definitions/journeys", "Directory of journey YAML definitions")
		guidelinesDirF = flag.String("guidelines-dir", "definitions/guidelines", "Directory of guideline YAML definitions")
		providerF      = flag.String("model-provider", "anthropic", "Model provider: anthropic, openai, or bedrock")
		modelF         = flag.String("model", "claude-sonnet-4-5", "Default model identifier")
		httpPortF      = flag.String("http-port", "8080", "HTTP port serving POST /turn")
		dbgF           = flag.Bool("debug", false, "Enable debug-level logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	if *postgresDSNF == "" {
		log.Fatal(ctx, errors.New("-postgres-dsn (or FLOWCONTROL_POSTGRES_DSN) is required"))
	}

	durable, err := postgres.NewStore(ctx, *postgresDSNF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("connect durable store: %w", err))
	}
	defer durable.Close()

	var cacheStore fccache.Store
	if *redisAddrF != "" {
		cacheStore = fccache.NewRedisStore(redis.NewClient(&redis.Options{Addr: *redisAddrF}))
	} else {
		log.Print(ctx, log.KV{K: "cache", V: "redis address not set, using in-memory store"})
		cacheStore = fccache.NewMemoryStore()
	}
	cache := fccache.New(cacheStore, logger)

	client, err := newModelClient(*providerF, *modelF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	limiter := modelmiddleware.NewAdaptiveRateLimiter(60000, 240000)
	client = limiter.Middleware()(client)

	journeyStore := journey.NewStore(durable, cache)
	guidelineStore := guideline.NewStore(durable, cache)

	journeyDefs, err := loader.LoadJourneysDir(*journeysDirF)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load journeys: %w", err))
	}
	for _, def := range journeyDefs {
		if err := journeyStore.UpsertDefinition(ctx, def); err != nil {
			log.Fatal(ctx, fmt.Errorf("upsert journey %q: %w", def.Name, err))
		}
	}
	guidelineDefs, err := loader.LoadGuidelinesDir(*guidelinesDirF, func() string { return uuid.NewString() })
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load guidelines: %w", err))
	}
	for _, def := range guidelineDefs {
		if err := guidelineStore.UpsertDefinition(ctx, def); err != nil {
			log.Fatal(ctx, fmt.Errorf("upsert guideline %q: %w", def.Name, err))
		}
	}
	if err := journeyStore.LoadAll(ctx); err != nil {
		log.Fatal(ctx, fmt.Errorf("preload journeys: %w", err))
	}
	if err := guidelineStore.LoadAll(ctx); err != nil {
		log.Fatal(ctx, fmt.Errorf("preload guidelines: %w", err))
	}

	journeyMatcher := journey.NewMatcher(client, cache, journeyStore, logger)
	journeyEngine := journey.NewEngine(journeyStore, journeyMatcher, logger, metrics)

	guidelineMatcher := guideline.NewMatcher(client, guidelineStore, logger)
	validator := guideline.NewValidator(client, durable, logger)

	toolRegistry, err := buildToolRegistry()
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build tool registry: %w", err))
	}
	toolExecutor := toolexec.NewExecutor(toolRegistry, cache, logger, metrics)

	pipeline := turn.New(journeyEngine, journeyStore, guidelineMatcher, guidelineStore, validator, toolRegistry, toolExecutor, client, cache, logger, metrics)

	mux := http.NewServeMux()
	mux.Handle("/turn", newTurnHandler(pipeline, logger))
	server := &http.Server{Addr: ":" + *httpPortF, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		log.Printf(ctx, "flow control core listening on :%s", *httpPortF)
		errc <- server.ListenAndServe()
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		log.Printf(ctx, "exiting (%v)", sig)
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, err, log.KV{K: "event", V: "http server failed"})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "event", V: "graceful shutdown failed"})
	}
}

func newModelClient(provider, model string) (fcmodel.Client, error) {
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		return anthropic.NewFromAPIKey(apiKey, model)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		return openai.NewFromAPIKey(apiKey, model)
	case "bedrock":
		return nil, errors.New("bedrock provider requires an aws.Config; wire bedrock.New with your own runtime client")
	default:
		return nil, fmt.Errorf("unknown model provider %q", provider)
	}
}

// buildToolRegistry assembles the Tool Executor's catalog. Concrete
// deployments register their own callables (CRM lookups, scheduling APIs,
// payment processors); this core ships none by default.
func buildToolRegistry() (*toolexec.Registry, error) {
	builder := toolexec.NewBuilder()
	return builder.Freeze()
}
