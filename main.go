// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/thebuddyman/v0-notion-usability-testing/database"
	"github.com/thebuddyman/v0-notion-usability-testing/handlers"
	"github.com/thebuddyman/v0-notion-usability-testing/middleware"
	"github.com/thebuddyman/v0-notion-usability-testing/store"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Initialize Notion (session records) ---
	// Fails fast on missing or malformed credentials: nothing works
	// without the record store.
	notionClient, err := database.NewNotionDB()
	if err != nil {
		log.Fatalf("Failed to initialize Notion record store: %v", err)
	}

	// --- Initialize ClickHouse (funnel event counters) ---
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse database: %v", err)
	}
	defer chClient.Close()

	// --- Initialize PostgreSQL (researcher accounts) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- Initialize Stores ---
	sessionStore := store.NewSessionStore(notionClient)
	metricsStore := store.NewMetricsStore(chClient)
	userStore := store.NewUserStore(dbClient.DB)

	// --- Initialize Handlers ---
	sessionHandlers := handlers.NewSessionHandlers(sessionStore)
	trackHandlers := handlers.NewTrackHandlers(metricsStore)
	authHandlers := handlers.NewAuthHandlers(userStore)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		// Instrumentation endpoints: participants are anonymous, so no
		// authentication here. session-action and track must also keep
		// accepting raw-text beacon bodies.
		api.POST("/session-action", sessionHandlers.HandleSessionAction)
		api.POST("/feedback", sessionHandlers.SubmitFeedback)
		api.POST("/track", trackHandlers.TrackEvent)

		// Researcher accounts
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Researcher-facing analytics (require a valid JWT token)
		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/analytics", sessionHandlers.GetAnalytics)
			protected.GET("/stats", trackHandlers.GetStats)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Usability funnel API server starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
