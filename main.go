package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"bridge-service/internal/db"
	"bridge-service/internal/handlers"
	"bridge-service/internal/logger"
	"bridge-service/internal/middleware"
	"bridge-service/internal/models"
	"bridge-service/internal/observability"
	"bridge-service/internal/platform"
	"bridge-service/internal/rabbitmq"
	"bridge-service/internal/repositories"
	"bridge-service/internal/services"
	"bridge-service/internal/telemetry"
	"bridge-service/internal/ws"
)

const serviceName = "bridge-service"

func main() {
	_ = godotenv.Load()

	logg := logger.New(serviceName)
	defer logg.Sync()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := telemetry.InitTracing(context.Background(), serviceName, endpoint)
		if err != nil {
			logg.Warnw("tracing disabled", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "bridge.events"))
	defer publisher.Close()
	logg.Infow("amqp publisher ready", "mode", rabbitmq.PublisherMode(publisher))

	if url := os.Getenv("AMQP_URL"); url != "" {
		wsPublisher, err := observability.NewAMQPPublisher(url, getEnv("WS_EVENTS_EXCHANGE", "ws.events"))
		if err != nil {
			logg.Warnw("ws event publishing disabled", "error", err)
		} else {
			observability.SetPublisher(wsPublisher)
			defer wsPublisher.Close()
		}
	}

	audit := telemetry.NewAuditEmitter(publisher, getEnv("AUDIT_ROUTING_KEY", "audit.bridge"), serviceName, getEnv("ENVIRONMENT", "development"))

	channelRepo := repositories.NewChannelRepo(database)
	mappingRepo := repositories.NewMappingRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	eventRepo := repositories.NewEventRepo(database)
	positionRepo := repositories.NewPositionRepo(database)

	hub := ws.NewHub()

	adapters := buildAdapterRegistry()

	channelSvc := services.NewChannelService(channelRepo, messageRepo, positionRepo, hub, logg)
	bridgeSvc := services.NewBridgeService(
		mappingRepo, channelRepo, messageRepo, eventRepo,
		adapters, hub, getEnv("WEBHOOK_BASE_URL", "http://localhost:8086"), logg,
	)

	channelHandler := handlers.NewChannelHandler(channelSvc, bridgeSvc, audit)
	bridgeHandler := handlers.NewBridgeHandler(bridgeSvc, audit)
	webhookHandler := handlers.NewWebhookHandler(bridgeSvc, logg)

	verifier := middleware.JWTVerifier([]byte(getEnv("JWT_SECRET", "dev-secret")))
	eventWS := ws.NewEventWebSocketHandler(hub, eventRepo, verifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/events/:event_id/channels", authMiddleware, channelHandler.ListChannels)
	router.GET("/events/:event_id/channels/visible", authMiddleware, channelHandler.ListVisibleChannels)
	router.POST("/events/:event_id/channels", authMiddleware, channelHandler.CreateChannel)
	router.POST("/events/:event_id/channels/defaults", authMiddleware, channelHandler.CreateDefaultChannels)
	router.POST("/events/:event_id/channels/positions", authMiddleware, channelHandler.CreatePositionChannels)
	router.PUT("/events/:event_id/channels/order", authMiddleware, channelHandler.ReorderChannels)
	router.PATCH("/channels/:channel_id", authMiddleware, channelHandler.UpdateChannel)
	router.POST("/channels/:channel_id/archive", authMiddleware, channelHandler.ArchiveChannel)
	router.POST("/channels/:channel_id/restore", authMiddleware, channelHandler.RestoreChannel)
	router.DELETE("/channels/:channel_id", authMiddleware, channelHandler.DeleteChannel)
	router.POST("/channels/:channel_id/messages", authMiddleware, channelHandler.PostMessage)
	router.POST("/channels/:channel_id/messages/archive", authMiddleware, channelHandler.ArchiveMessages)

	router.POST("/events/:event_id/external", authMiddleware, bridgeHandler.CreateExternal)
	router.GET("/events/:event_id/external", authMiddleware, bridgeHandler.ListMappings)
	router.POST("/events/:event_id/external/cleanup-emulators", authMiddleware, bridgeHandler.CleanupEmulators)
	router.DELETE("/external/:mapping_id", authMiddleware, bridgeHandler.Deactivate)

	router.POST("/webhooks/:platform/:mapping_id", webhookHandler.Receive)
	router.POST("/webhooks/teams", webhookHandler.TeamsActivity)
	router.GET("/webhooks/health", webhookHandler.Health)

	router.GET("/ws/events/:event_id", eventWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, os.Getenv("DEBUG_ROUTES") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildAdapterRegistry registers an adapter for each platform that has
// credentials configured. Unconfigured platforms stay unresolvable.
func buildAdapterRegistry() platform.Registry {
	registry := platform.Registry{}
	if token := os.Getenv("GROUPME_TOKEN"); token != "" {
		registry[models.PlatformGroupMe] = platform.NewGroupMeAdapter(token)
	}
	if appID := os.Getenv("TEAMS_APP_ID"); appID != "" {
		registry[models.PlatformTeams] = platform.NewTeamsAdapter(appID, os.Getenv("TEAMS_APP_PASSWORD"))
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		registry[models.PlatformSlack] = platform.NewSlackAdapter(token)
	}
	if baseURL := os.Getenv("SIGNAL_API_URL"); baseURL != "" {
		registry[models.PlatformSignal] = platform.NewSignalAdapter(baseURL, os.Getenv("SIGNAL_NUMBER"))
	}
	return registry
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
