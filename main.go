package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/jhilgenberg/evsync/config"
	"github.com/jhilgenberg/evsync/crypto"
	"github.com/jhilgenberg/evsync/database"
	"github.com/jhilgenberg/evsync/handlers"
	"github.com/jhilgenberg/evsync/middleware"
	"github.com/jhilgenberg/evsync/services"
	"github.com/rs/cors"
)

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOVERED: %v", err)
				log.Printf("Stack trace: %s", debug.Stack())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func main() {
	log.Println("Starting EVSync...")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize cipher: %v", err)
	}
	if cfg.EncryptionKey == "" {
		log.Println("WARNING: ENCRYPTION_KEY not set, using a volatile key")
	}

	syncService := services.NewSyncService(db, cipher)
	syncScheduler := services.NewSyncScheduler(syncService, cfg.SyncInterval)
	reportGenerator := services.NewReportGenerator(db, cfg.ReportsDir)
	emailSender := services.NewEmailSender(cfg)

	go syncScheduler.Start()

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	wallboxHandler := handlers.NewWallboxHandler(db, cipher, syncService)
	tariffHandler := handlers.NewTariffHandler(db)
	sessionHandler := handlers.NewSessionHandler(db, syncService)
	carHandler := handlers.NewCarHandler(db)
	dashboardHandler := handlers.NewDashboardHandler(db)
	reportHandler := handlers.NewReportHandler(db, reportGenerator, emailSender)

	r := mux.NewRouter()

	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/health", healthCheck).Methods("GET")
	r.HandleFunc("/api/cron/sync", cronSyncHandler(cfg.CronSecret, syncService)).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods("POST")

	api.HandleFunc("/wallboxes", wallboxHandler.List).Methods("GET")
	api.HandleFunc("/wallboxes", wallboxHandler.Create).Methods("POST")
	api.HandleFunc("/wallboxes/{id}", wallboxHandler.Get).Methods("GET")
	api.HandleFunc("/wallboxes/{id}", wallboxHandler.Update).Methods("PUT")
	api.HandleFunc("/wallboxes/{id}", wallboxHandler.Delete).Methods("DELETE")
	api.HandleFunc("/wallboxes/{id}/status", wallboxHandler.Status).Methods("GET")
	api.HandleFunc("/wallboxes/{id}/sync", wallboxHandler.Sync).Methods("POST")

	api.HandleFunc("/tariffs", tariffHandler.List).Methods("GET")
	api.HandleFunc("/tariffs", tariffHandler.Create).Methods("POST")
	api.HandleFunc("/tariffs/{id}", tariffHandler.Update).Methods("PUT")
	api.HandleFunc("/tariffs/{id}", tariffHandler.Delete).Methods("DELETE")

	api.HandleFunc("/charging-sessions", sessionHandler.List).Methods("GET")
	api.HandleFunc("/charging-sessions/sync", sessionHandler.Sync).Methods("POST")
	api.HandleFunc("/charging-sessions/assign-car", sessionHandler.AssignCar).Methods("POST")
	api.HandleFunc("/charging-sessions/bulk-assign", sessionHandler.BulkAssignCar).Methods("POST")
	api.HandleFunc("/charging-sessions/{id}", sessionHandler.Delete).Methods("DELETE")

	api.HandleFunc("/cars", carHandler.List).Methods("GET")
	api.HandleFunc("/cars", carHandler.Create).Methods("POST")
	api.HandleFunc("/cars/{id}", carHandler.Update).Methods("PUT")
	api.HandleFunc("/cars/{id}", carHandler.Delete).Methods("DELETE")

	api.HandleFunc("/dashboard", dashboardHandler.GetStats).Methods("GET")

	api.HandleFunc("/reports/generate", reportHandler.Generate).Methods("POST")
	api.HandleFunc("/reports/send", reportHandler.Send).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      c.Handler(r),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  180 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.ServerAddress)
	log.Printf("Sync scheduler interval: %v", cfg.SyncInterval)

	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// cronSyncHandler triggers a full sync of every user, protected by a
// shared secret for external schedulers
func cronSyncHandler(secret string, syncService *services.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" || r.Header.Get("Authorization") != "Bearer "+secret {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		syncService.SyncAll()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}
}
