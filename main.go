package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"activamigos-chat/internal/auth"
	"activamigos-chat/internal/chat"
	"activamigos-chat/internal/config"
	"activamigos-chat/internal/cooldown"
	"activamigos-chat/internal/db"
	grpcserver "activamigos-chat/internal/grpc"
	"activamigos-chat/internal/handlers"
	"activamigos-chat/internal/middleware"
	"activamigos-chat/internal/models"
	"activamigos-chat/internal/moderation"
	"activamigos-chat/internal/observability"
	"activamigos-chat/internal/rabbitmq"
	"activamigos-chat/internal/repositories"
	"activamigos-chat/internal/telemetry"
	"activamigos-chat/internal/ws"
)

const serviceName = "activamigos-chat"

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.Environment, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("failed to setup tracing: %v", err)
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("amqp publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment)

	store := cooldown.New(ctx, cfg.RedisURL, cfg.SendCooldown)

	messageRepo := repositories.NewMessageRepo(database)
	membershipRepo := repositories.NewMembershipRepo(database)
	warningRepo := repositories.NewWarningRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	chatService := chat.NewService(membershipRepo, messageRepo, store, hub)
	moderationService := moderation.NewService(membershipRepo, warningRepo, messageRepo, userRepo, hub, auditEmitter)

	chatHandler := handlers.NewChatHandler(chatService)
	moderationHandler := handlers.NewModerationHandler(moderationService)
	wsHandler := ws.NewHandler(hub, tokens, chatService)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(tokens)
	moderators := middleware.RequireRole(models.RoleOrganizer, models.RoleSuperAdmin)

	api := router.Group("/api", authMiddleware)
	api.GET("/chat/history", chatHandler.History)
	api.POST("/chat/messages", chatHandler.PostMessage)
	api.GET("/moderation/status", moderationHandler.Status)
	api.POST("/moderation/warnings", moderators, moderationHandler.IssueWarning)
	api.GET("/moderation/warnings", moderators, moderationHandler.ListWarnings)
	api.PATCH("/moderation/memberships/:membership_id/unban", middleware.RequireRole(models.RoleSuperAdmin), moderationHandler.Unban)
	handlers.RegisterDebugRoutes(api, auditEmitter, hub, cfg.DebugRoutes)

	healthServer := grpcserver.NewHealthServer(database, cfg.HealthInterval)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("failed to listen grpc: %v", err)
	}
	go healthServer.Watch(ctx)
	go func() {
		if err := healthServer.Serve(lis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("chat server listening port=%s grpc_port=%s env=%s", cfg.Port, cfg.GRPCPort, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	healthServer.Stop()
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
