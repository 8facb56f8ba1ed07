package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"gridd360-manager/internal/MinIO"
	"gridd360-manager/pkg/database/postgres"
	"gridd360-manager/pkg/database/redis"
)

type OAuthConfig struct {
	ClientID    string `env:"PHOTOS_CLIENT_ID"`
	AuthURL     string `env:"PHOTOS_AUTH_URL" env-default:"https://accounts.google.com/o/oauth2/v2/auth"`
	RedirectURL string `env:"PHOTOS_REDIRECT_URI" env-default:"http://localhost:8080/api/auth/photos/callback"`
	Scopes      string `env:"PHOTOS_SCOPES" env-default:"https://www.googleapis.com/auth/photoslibrary.readonly"`
	BackendURL  string `env:"PHOTOS_TOKEN_BACKEND_URL"`
	RevokeURL   string `env:"PHOTOS_REVOKE_URL" env-default:"https://oauth2.googleapis.com/revoke"`
}

type Config struct {
	HTTPPort       string `env:"HTTP_PORT" env-default:"8080"`
	JWTSecret      string `env:"JWT_TOKEN"`
	TokenCachePath string `env:"TOKEN_CACHE_PATH" env-default:".gridd360/token-cache.json"`
	Postgres       postgres.Config
	Redis          redis.Config
	MinIO          MinIO.Config
	OAuth          OAuthConfig
}

func Load() (*Config, error) {
	var cfg Config
	if _, err := os.Stat("./.env"); err == nil {
		if err := cleanenv.ReadConfig("./.env", &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from .env: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read config from environment: %w", err)
	}
	return &cfg, nil
}
