//go:build wireinject
// +build wireinject

package main

import (
	"database/sql"

	"github.com/google/wire"
	"go.uber.org/zap"

	"converse/config"
	"converse/internal/api"
	"converse/internal/auth"
	"converse/internal/cache"
	"converse/internal/chat"
	"converse/internal/realtime"
	"converse/internal/user"
)

func InitializeServer(cfg *config.Config, db *sql.DB, redisCache *cache.RedisCache, log *zap.Logger) *api.Server {
	wire.Build(user.Set, auth.Set, chat.Set, realtime.Set, api.NewServer)
	return nil
}
