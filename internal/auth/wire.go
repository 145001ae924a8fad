package auth

import (
	"github.com/google/wire"

	"converse/config"
	"converse/internal/cache"
	"converse/internal/realtime"
	"converse/internal/user"
	"converse/pkg/jwt"

	"go.uber.org/zap"
)

// ProvideService is a Wire provider function that creates an auth.Service
func ProvideService(cfg *config.Config, users user.Repository, redis *cache.RedisCache, log *zap.Logger) *Service {
	accessJWT := jwt.NewJWT(cfg.AccessSecret, cfg.AccessTokenTTL)
	refreshJWT := jwt.NewJWT(cfg.RefreshSecret, cfg.RefreshTokenTTL)
	return NewService(users, redis, accessJWT, refreshJWT, cfg.RefreshTokenTTL, log)
}

// ProvideResolver binds the auth service as the realtime identity resolver.
func ProvideResolver(s *Service) realtime.IdentityResolver {
	return s
}

var Set = wire.NewSet(ProvideService, ProvideResolver)
