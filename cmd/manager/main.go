package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gridd360-manager/gateway"
	"gridd360-manager/internal/MinIO"
	"gridd360-manager/internal/config"
	"gridd360-manager/internal/repository/assetRepo"
	"gridd360-manager/internal/repository/auditRepo"
	"gridd360-manager/internal/repository/folderRepo"
	"gridd360-manager/internal/repository/tokenRepo"
	"gridd360-manager/internal/repository/verifierRepo"
	"gridd360-manager/internal/service/assetService"
	"gridd360-manager/internal/service/permissionService"
	"gridd360-manager/internal/service/tokenService"
	"gridd360-manager/internal/storage/filekv"
	"gridd360-manager/pkg/database/postgres"
	"gridd360-manager/pkg/database/redis"
	"gridd360-manager/pkg/logger"
)

// the dashboard runs one Google Photos connection per deployment
const photosSessionID = "dashboard"

func main() {
	ctx := context.Background()
	ctx, _ = logger.New(ctx)

	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger(ctx).Fatal("Error loading config", zap.Error(err))
	}
	conn, err := postgres.New(cfg.Postgres)
	if err != nil {
		logger.GetLogger(ctx).Fatal("Failed to connect to database", zap.Error(err))
	}
	redisClient := redis.New(cfg.Redis)
	minioClient := MinIO.New(cfg.MinIO)

	localCache, err := filekv.New(cfg.TokenCachePath)
	if err != nil {
		logger.GetLogger(ctx).Fatal("Failed to open token cache", zap.Error(err))
	}

	log := logger.GetLogger(ctx).Zap()

	permSvc := permissionService.New(folderRepo.New(conn), auditRepo.New(conn), log)
	if err := permSvc.Restore(ctx); err != nil {
		logger.GetLogger(ctx).Fatal("Failed to restore folder state", zap.Error(err))
	}
	tokenSvc := tokenService.New(
		tokenService.Config{
			ClientID:    cfg.OAuth.ClientID,
			AuthURL:     cfg.OAuth.AuthURL,
			RedirectURL: cfg.OAuth.RedirectURL,
			Scopes:      strings.Fields(cfg.OAuth.Scopes),
			BackendURL:  cfg.OAuth.BackendURL,
			RevokeURL:   cfg.OAuth.RevokeURL,
		},
		photosSessionID,
		localCache,
		tokenRepo.New(redisClient),
		verifierRepo.New(redisClient),
		log,
	)
	defer tokenSvc.Close()

	if err := tokenSvc.Restore(ctx); err != nil {
		logger.GetLogger(ctx).Warn("Failed to restore photos session", zap.Error(err))
	}

	assetSvc := assetService.New(assetRepo.New(conn), permSvc, minioClient)

	router := gateway.NewRouter(gateway.Deps{
		Perms:     permSvc,
		Tokens:    tokenSvc,
		Assets:    assetSvc,
		JWTSecret: cfg.JWTSecret,
	})
	if err := router.Run(fmt.Sprintf(":%s", cfg.HTTPPort)); err != nil {
		logger.GetLogger(ctx).Fatal("Failed to serve", zap.Error(err))
	}
}
