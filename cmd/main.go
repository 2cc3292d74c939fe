package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bohania/reception-desk/internal/arrivals"
	"github.com/bohania/reception-desk/internal/auth"
	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/handlers"
	"github.com/bohania/reception-desk/internal/intake"
	"github.com/bohania/reception-desk/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment")
	}

	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "reception_desk"
	}
	database := client.Database(dbName)
	store := db.NewMongoStore(database)
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}

	engine := intake.NewEngine(store, log.StandardLogger())

	authHandler := handlers.NewAuthHandler(authService, users)
	receptionHandler := handlers.NewReceptionHandler(engine, store)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", authHandler.GetProfile).Methods(http.MethodGet)
	receptionHandler.RegisterRoutes(router, authMiddleware.RequirePermission)

	router.Use(rateLimiter.RateLimit(300, 60))
	router.Use(authMiddleware.Authenticate)

	if brokerURL := os.Getenv("MQTT_BROKER_URL"); brokerURL != "" {
		listener := arrivals.NewListener(store, log.StandardLogger())
		if err := listener.Start(brokerURL); err != nil {
			log.WithError(err).Fatal("failed to start arrivals listener")
		}
		defer listener.Stop()
	} else {
		log.Info("MQTT_BROKER_URL not set, arrivals feed disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", port).Info("reception desk listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}
