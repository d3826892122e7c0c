package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/usta-app/usta-server/internal/auth"
	"github.com/usta-app/usta-server/internal/chat"
	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/db"
	"github.com/usta-app/usta-server/internal/job"
	"github.com/usta-app/usta-server/internal/middleware"
	"github.com/usta-app/usta-server/internal/notification"
	"github.com/usta-app/usta-server/internal/realtime"
)

func main() {
	// Read configuration from environment; a .env file is optional.
	_ = godotenv.Load()

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Fatal("MONGODB_URI must be set")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	rateRPM := 60
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateRPM = n
		}
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, mongoURI)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Stores
	usersStore := data.NewUsersStore(dbClient.UsersCollection(), dbClient.ProfessionalsCollection())
	jobsStore := data.NewJobsStore(dbClient.JobsCollection())
	convsStore := data.NewConversationsStore(dbClient.ConversationsCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection())
	notifsStore := data.NewNotificationsStore(dbClient.NotificationsCollection())

	// Auth manager (tokens valid for 24 hours)
	jwtMgr := auth.NewJWTManager(jwtSecret, 24*time.Hour)

	// Realtime hub and services
	hub := realtime.NewHub()
	notifSvc := notification.NewService(notifsStore, hub)
	chatSvc := chat.NewService(convsStore, msgsStore, notifSvc, hub)
	jobSvc := job.NewService(jobsStore, usersStore, convsStore, notifSvc, hub)
	gateway := realtime.NewGateway(hub, jwtMgr, usersStore, convsStore)

	// Per-user rate limiter (small burst to allow quick retries)
	limiterStore := middleware.NewLimiterStore(rateRPM, 10, 1*time.Minute)
	defer limiterStore.Stop()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	setupRoutes(router, routeDeps{
		jwt:           jwtMgr,
		limiter:       limiterStore,
		users:         usersStore,
		jobs:          jobSvc,
		chat:          chatSvc,
		notifications: notifSvc,
		gateway:       gateway,
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server exit: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
