package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tengenlabs/tengen/internal/api"
	"github.com/tengenlabs/tengen/internal/circuitbreaker"
	"github.com/tengenlabs/tengen/internal/config"
	"github.com/tengenlabs/tengen/internal/dispatch"
	"github.com/tengenlabs/tengen/internal/engine"
	"github.com/tengenlabs/tengen/internal/events"
	"github.com/tengenlabs/tengen/internal/infra"
	"github.com/tengenlabs/tengen/internal/liveplay"
	"github.com/tengenlabs/tengen/internal/llm"
	"github.com/tengenlabs/tengen/internal/messaging"
	"github.com/tengenlabs/tengen/internal/monitoring"
	"github.com/tengenlabs/tengen/internal/review"
	"github.com/tengenlabs/tengen/internal/router"
	"github.com/tengenlabs/tengen/internal/session"
	"github.com/tengenlabs/tengen/internal/storage"
)

const shutdownGrace = 30 * time.Second

func main() {
	// .env is a dev convenience; deployments set real variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration: %v", err)
	}

	ctx := context.Background()

	// Blob storage, the system of record.
	store, err := storage.NewGCS(ctx, cfg.Bucket)
	if err != nil {
		log.Fatalf("❌ Blob store %q: %v", cfg.Bucket, err)
	}
	var authStore storage.Store = store
	if cfg.AuthBucket != cfg.Bucket {
		gcs, err := storage.NewGCS(ctx, cfg.AuthBucket)
		if err != nil {
			log.Fatalf("❌ Auth store %q: %v", cfg.AuthBucket, err)
		}
		authStore = gcs
	}

	// Optional Redis: shared bot identity and per-chat locks.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = infra.Connect(cfg.RedisAddr)
		if err != nil {
			log.Printf("⚠️ Redis %s unavailable, continuing without it: %v", cfg.RedisAddr, err)
			rdb = nil
		}
	}
	identity := infra.NewIdentityCache(rdb)

	var locks *infra.ChatLocker
	if cfg.ChatLocks {
		locks = infra.NewChatLocker(rdb)
		if rdb == nil {
			log.Printf("⚠️ CHAT_LOCKS without REDIS_ADDR locks within this instance only")
		}
	}

	breakers := circuitbreaker.NewServiceBreakers()
	metrics := monitoring.NewMetrics()

	// Lifecycle events: Pub/Sub when configured, in-process otherwise.
	var bus events.EventEmitter = events.NewEventBus()
	var busClose func() error
	if cfg.EventsTopic != "" && cfg.GCPProject != "" {
		pubsubBus, err := events.NewPubSubEventBus(cfg.GCPProject, cfg.EventsTopic)
		if err != nil {
			log.Printf("⚠️ Pub/Sub events unavailable, staying in-process: %v", err)
		} else {
			bus = pubsubBus
			busClose = pubsubBus.Close
		}
	}

	messenger := messaging.NewClient(messaging.Config{
		ChannelToken:  cfg.ChannelToken,
		CarouselBatch: cfg.Tuning.CarouselSize,
		CarouselDelay: time.Duration(cfg.Tuning.CarouselDelayMs) * time.Millisecond,
		TextDelay:     time.Duration(cfg.Tuning.FallbackDelayMs) * time.Millisecond,
		Breaker:       breakers.Messaging,
		Metrics:       metrics,
	})

	llmClient := llm.NewClient(llm.Config{
		Endpoint: cfg.LLMEndpoint,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Breaker:  breakers.LLM,
		Metrics:  metrics,
	})

	// A local engine serves the evaluation command and, without a remote
	// companion, the review and genmove jobs too.
	var local *engine.Local
	if cfg.EngineModel != "" && cfg.EngineConfig != "" {
		local = engine.NewLocal(engine.LocalConfig{
			Bin:     cfg.EngineBin,
			Model:   cfg.EngineModel,
			Config:  cfg.EngineConfig,
			Breaker: breakers.Engine,
			Metrics: metrics,
		})
		log.Printf("✅ Local engine: model %s", cfg.EngineModel)
	}

	var runner dispatch.Runner
	switch {
	case cfg.RemoteEngineEnabled():
		runner = dispatch.RemoteRunner{Client: engine.NewRemoteClient(engine.RemoteConfig{
			Endpoint: cfg.EngineEndpoint,
			Breaker:  breakers.Engine,
			Metrics:  metrics,
		})}
		log.Printf("✅ Remote engine companion: %s", cfg.EngineEndpoint)
	case local != nil:
		runner = dispatch.NewCompanion(dispatch.CompanionConfig{
			Store:         store,
			Engine:        local,
			ReviewVisits:  cfg.Tuning.ReviewMaxVisits,
			GenMoveVisits: cfg.Tuning.GenMoveMaxVisits,
		})
	default:
		log.Printf("⚠️ No engine configured; review and AI play stay off until ENGINE_ENDPOINT or ENGINE_MODEL/ENGINE_CONFIG are set")
	}

	var dispatcher dispatch.Dispatcher = unavailableDispatcher{}
	if runner != nil {
		pool := dispatch.NewPool(runner, 0, metrics)
		dispatcher = pool

		if cfg.CloudTasksEnabled() {
			if !cfg.RemoteEngineEnabled() {
				log.Printf("⚠️ Cloud Tasks configured without ENGINE_ENDPOINT, using the local pool")
			} else if ct, err := dispatch.NewCloudTasks(dispatch.CloudTasksConfig{
				ProjectID:  cfg.GCPProject,
				LocationID: cfg.TasksLocation,
				QueueID:    cfg.TasksQueue,
				Endpoint:   cfg.EngineEndpoint,
				Fallback:   pool,
			}); err != nil {
				log.Printf("⚠️ Cloud Tasks unavailable, using the local pool: %v", err)
			} else {
				dispatcher = ct
				log.Printf("✅ Cloud Tasks queue: %s/%s/%s", cfg.GCPProject, cfg.TasksLocation, cfg.TasksQueue)
			}
		}
	}

	// Engine companions post results back here. The in-process companion
	// posts to this same server, so loopback is a workable default.
	callbackBase := cfg.CallbackBaseURL
	if callbackBase == "" {
		callbackBase = "http://127.0.0.1:" + cfg.Port
		log.Printf("⚠️ CALLBACK_BASE_URL unset, callbacks go to %s", callbackBase)
	}

	sessions := session.NewStore(store)

	orchestrator := review.NewOrchestrator(review.Config{
		Store:           store,
		Messenger:       messenger,
		LLM:             llmClient,
		Dispatcher:      dispatcher,
		Events:          bus,
		Metrics:         metrics,
		CallbackBaseURL: callbackBase,
		Tuning:          cfg.Tuning,
	})

	var evaluator liveplay.Evaluator
	if local != nil {
		evaluator = local
	}

	live := liveplay.New(liveplay.Config{
		Store:           store,
		Sessions:        sessions,
		Messenger:       messenger,
		Dispatcher:      dispatcher,
		Evaluator:       evaluator,
		Events:          bus,
		Metrics:         metrics,
		CallbackBaseURL: callbackBase,
		Tuning:          cfg.Tuning,
	})

	rt := router.New(router.Config{
		Messenger:       messenger,
		Sessions:        sessions,
		Store:           store,
		AuthStore:       authStore,
		LivePlay:        live,
		Review:          orchestrator,
		Identity:        identity,
		Locks:           locks,
		Metrics:         metrics,
		GlobalAuthToken: cfg.GlobalAuthToken,
		Tuning:          cfg.Tuning,
	})

	server := api.New(api.Config{
		Addr:          ":" + cfg.Port,
		WebhookPath:   cfg.WebhookPath,
		ChannelSecret: cfg.ChannelSecret,
		Events:        rt,
		Review:        orchestrator,
		LivePlay:      live,
		Store:         store,
		Dispatcher:    dispatcher,
		Breakers:      breakers,
	})

	// Warm the bot identity so the first group message does not pay the
	// lookup; mention gating loads it lazily either way.
	go func() {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		info, err := messenger.BotInfo(wctx)
		if err != nil {
			log.Printf("⚠️ Bot identity warm-up failed: %v", err)
			return
		}
		identity.Put(wctx, infra.BotIdentity{UserID: info.UserID, DisplayName: info.DisplayName})
		log.Printf("✅ Bot identity: %s (%s)", info.DisplayName, info.UserID)
	}()

	// Cloud Run sends SIGTERM; local runs stop on Ctrl-C.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("🔌 %s received, draining for up to %s", sig, shutdownGrace)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ HTTP shutdown: %v", err)
		}
	}()

	log.Printf("📊 Health check: http://localhost:%s/health", cfg.Port)

	if err := server.Start(); err != nil {
		log.Fatalf("❌ HTTP server: %v", err)
	}

	// Listener closed; finish what was already accepted.
	dispatcher.Shutdown()
	if busClose != nil {
		if err := busClose(); err != nil {
			log.Printf("⚠️ Event bus close: %v", err)
		}
	}

	log.Println("✅ Server stopped")
}

// errNoEngine fails engine jobs immediately when no engine is configured;
// the pipelines already translate dispatch failures into user-facing text.
var errNoEngine = errors.New("no engine configured")

type unavailableDispatcher struct{}

func (unavailableDispatcher) DispatchReview(ctx context.Context, job engine.ReviewJob) error {
	return errNoEngine
}

func (unavailableDispatcher) DispatchGenMove(ctx context.Context, job engine.GenMoveJob) error {
	return errNoEngine
}

func (unavailableDispatcher) HealthCheck(ctx context.Context) error { return errNoEngine }

func (unavailableDispatcher) Shutdown() {}
