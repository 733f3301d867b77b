package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"coursio/internal/api"
	"coursio/internal/auth"
	"coursio/internal/config"
	"coursio/internal/db"
	"coursio/internal/ledger"
	"coursio/internal/lifecycle"
	"coursio/internal/notify"
	"coursio/internal/payments"
	"coursio/internal/referral"
	"coursio/internal/storage"
	"coursio/internal/utils"
	"coursio/internal/wallet"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: could not load .env file. Environment variables must be set another way.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Critical error: could not load configuration: %v", err)
	}

	if err := utils.InitEncryptionKey(); err != nil {
		log.Fatalf("Critical error: could not initialize encryption key: %v", err)
	}

	// Dev mode runs fully in memory; production requires Postgres.
	var store storage.Store
	if cfg.AppEnv == "dev" && cfg.DatabaseURL == "" {
		log.Println("Running with the in-memory store (dev mode, no DATABASE_URL).")
		store = storage.NewMemory()
	} else {
		if err := db.InitDB(); err != nil {
			log.Fatalf("Critical error: could not initialize the database: %v", err)
		}
		defer db.CloseDB()
		store = db.NewPostgres(db.DB)
	}

	var gateway payments.Gateway
	if cfg.GatewayEndpoint != "" {
		gateway = payments.NewClient(cfg.GatewayEndpoint, cfg.GatewayAPIKey, cfg.GatewayAPISecret)
	} else {
		log.Println("Warning: no payment gateway configured, using the mock gateway.")
		gateway = payments.NewMockGateway()
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramToken != "" && cfg.OpsChatID != 0 {
		tgNotifier, errTg := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.OpsChatID, cfg.AppEnv == "dev")
		if errTg != nil {
			log.Printf("Warning: could not initialize the Telegram notifier: %v", errTg)
		} else {
			notifier = tgNotifier
		}
	}

	bookkeeper := ledger.New(store)
	graph := referral.New(store, store, store, bookkeeper)
	engine := lifecycle.New(store, store, store, bookkeeper, gateway, notifier)
	authService := auth.New(store, store, graph, engine)
	walletService := wallet.New(store, store, store, bookkeeper, gateway, notifier)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	server := &api.Server{
		Config: cfg,
		Store:  store,
		Auth:   authService,
		Engine: engine,
		Ledger: bookkeeper,
		Graph:  graph,
		Wallet: walletService,
	}
	api.SetupRoutes(r, server)

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log.Printf("Starting HTTP server on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("CRITICAL ERROR: could not start the HTTP server: %v", err)
	}
}
