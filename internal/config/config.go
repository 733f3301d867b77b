// internal/config/config.go
package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the application.
type Config struct {
	DatabaseURL string
	AppEnv      string
	Port        string
	AppBaseURL  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	GatewayEndpoint  string
	GatewayAPIKey    string
	GatewayAPISecret string

	TelegramToken string
	OpsChatID     int64

	SessionSecret string
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AppEnv:           os.Getenv("ENV"),
		Port:             os.Getenv("PORT"),
		AppBaseURL:       os.Getenv("APP_BASE_URL"),
		GatewayEndpoint:  os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewayAPIKey:    os.Getenv("PAYMENT_GATEWAY_KEY"),
		GatewayAPISecret: os.Getenv("PAYMENT_GATEWAY_SECRET"),
		TelegramToken:    os.Getenv("TELEGRAM_APITOKEN"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.AppBaseURL == "" {
		cfg.AppBaseURL = "http://localhost:" + cfg.Port
	}

	var err error
	cfg.OpsChatID, err = strconv.ParseInt(os.Getenv("OPS_CHAT_ID"), 10, 64)
	if err != nil {
		log.Printf("Warning: could not read OPS_CHAT_ID: %v. Set to 0.", err)
		cfg.OpsChatID = 0
	}

	if cfg.GatewayEndpoint == "" {
		log.Println("Warning: PAYMENT_GATEWAY_URL is not set. Direct payments and payouts will not work.")
	}
	if cfg.GatewayAPIKey == "" || cfg.GatewayAPISecret == "" {
		log.Println("Warning: payment gateway credentials are not set.")
	}
	if cfg.TelegramToken == "" {
		log.Println("Warning: TELEGRAM_APITOKEN is not set. Operational notifications go to the log only.")
	}
	if cfg.SessionSecret == "" {
		log.Println("Critical error: SESSION_SECRET is not set.")
	}

	if cfg.DatabaseURL == "" {
		log.Println("Critical error: DATABASE_URL is not set.")
	} else {
		parsedURL, parseErr := url.Parse(cfg.DatabaseURL)
		if parseErr != nil {
			log.Printf("Critical error: could not parse DATABASE_URL: %v", parseErr)
		} else {
			cfg.DBHost = parsedURL.Hostname()
			cfg.DBPort = parsedURL.Port()
			if cfg.DBPort == "" {
				cfg.DBPort = "5432"
			}
			cfg.DBUser = parsedURL.User.Username()
			cfg.DBPassword, _ = parsedURL.User.Password()
			cfg.DBName = strings.TrimPrefix(parsedURL.Path, "/")
		}
	}

	log.Println("Configuration loaded.")
	return cfg, nil
}
