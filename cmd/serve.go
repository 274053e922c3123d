package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/contextstore"
	"github.com/coursebot/assistant/contextstore/memory"
	"github.com/coursebot/assistant/contextstore/valkeystore"
	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/course/calendarmock"
	"github.com/coursebot/assistant/course/gormstore"
	"github.com/coursebot/assistant/dispatcher"
	"github.com/coursebot/assistant/infrastructure/valkey"
	"github.com/coursebot/assistant/llmclient"
	"github.com/coursebot/assistant/llmclient/gemini"
	"github.com/coursebot/assistant/llmclient/openai"
	"github.com/coursebot/assistant/messaging"
	"github.com/coursebot/assistant/messaging/line"
	"github.com/coursebot/assistant/messaging/mock"
	"github.com/coursebot/assistant/nlu"
	"github.com/coursebot/assistant/pkg/tracelog"
	"github.com/coursebot/assistant/render"
	"github.com/coursebot/assistant/slots"
	"github.com/coursebot/assistant/tasks"
	"github.com/coursebot/assistant/webhook"
)

const appVersion = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg := config.Load()

	db, err := gormstore.Open(orDefault(cfg.DatabaseDriver, "sqlite3"), orDefault(cfg.DatabaseDSN, "file:storages/assistant.db?_foreign_keys=on"))
	if err != nil {
		logrus.Fatalf("[STARTUP] failed to open course database: %v", err)
	}
	registry := config.NewRegistry(cfg, db)
	courseStore := gormstore.New(db)

	var calendar course.CalendarSync = calendarmock.New()

	kv, vkClient := buildContextKV(cfg)
	ctxStore := contextstore.NewService(kv)
	defer func() {
		if vkClient != nil {
			vkClient.Close()
		}
	}()

	llm := buildLLMClient(cfg)
	extractor := slots.New(registry, llm)
	pipeline := nlu.New(registry, llm, extractor)

	taskDeps := tasks.New(courseStore, calendar, registry)
	d := dispatcher.New(taskDeps.HandleUnknown)
	dispatcher.RegisterDefaults(d, taskDeps.Handlers())

	renderer := render.New(registry)
	traces := tracelog.New(tracelog.DefaultCapacity)

	var realClient messaging.Client
	if cfg.UseMockLineService || cfg.ChannelAccessToken == "" {
		realClient = mock.New()
		logrus.Warn("[STARTUP] USE_MOCK_LINE_SERVICE set or no LINE channel access token configured, using mock messaging client")
	} else {
		realClient = line.New(cfg.ChannelAccessToken)
	}

	handler := webhook.New(webhook.Deps{
		Config:     cfg,
		Registry:   registry,
		Context:    ctxStore,
		Pipeline:   pipeline,
		Extractor:  extractor,
		Dispatcher: d,
		Renderer:   renderer,
		Traces:     traces,
		RealClient: realClient,
		MockClient: mock.New(),
		Courses:    courseStore,
		Calendar:   calendar,
		Version:    appVersion,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	if cfg.AppDebug {
		app.Use(logger.New())
	}
	app.Use(cors.New())
	handler.RegisterRoutes(app)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logrus.Info("[SERVE] shutting down gracefully")
		_ = app.Shutdown()
	}()

	logrus.WithField("port", cfg.Port).Info("[SERVE] listening")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logrus.Fatalf("[SERVE] failed to start: %v", err)
	}
}

func buildContextKV(cfg config.Config) (contextstore.KV, *valkey.Client) {
	if cfg.RedisURL == "" {
		logrus.Info("[STARTUP] no REDIS_URL configured, using in-memory context store")
		return memory.New(), nil
	}
	vkClient, err := valkey.NewClient(valkey.Config{Address: cfg.RedisURL, KeyPrefix: "ctx:"})
	if err != nil {
		logrus.WithError(err).Warn("[STARTUP] failed to connect to Valkey, falling back to in-memory context store")
		return memory.New(), nil
	}
	logrus.Info("[STARTUP] using Valkey-backed context store")
	return valkeystore.New(vkClient), vkClient
}

func buildLLMClient(cfg config.Config) llmclient.Client {
	if !cfg.EnableAIFallback {
		return nil
	}
	if cfg.OpenAIAPIKey != "" {
		logrus.Info("[STARTUP] using OpenAI for intent/slot fallback")
		return openai.New(cfg.OpenAIAPIKey)
	}
	if cfg.GeminiAPIKey != "" {
		logrus.Info("[STARTUP] using Gemini for intent/slot fallback")
		return gemini.New(cfg.GeminiAPIKey)
	}
	logrus.Warn("[STARTUP] AI fallback enabled but no API key configured, disabling it")
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
