package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"teamtask/internal/cache"
	"teamtask/internal/config"
	"teamtask/internal/db"
	"teamtask/internal/engine"
	"teamtask/internal/migrate"
)

// Context is an opened workspace: database, config and a ready engine.
type Context struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	redis     *redis.Client
}

// Open prepares the workspace, migrates the database, wires the user
// cache when Redis is configured and seeds configured users.
func Open(ctx context.Context, workspace string, logger log.FieldLogger) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn)
	if logger != nil {
		eng.Log = logger
	}
	ac := &Context{Workspace: workspace, DB: conn, Config: cfg, Engine: eng}
	if url := cfg.Cache.RedisURL; url != "" {
		client, err := cache.Connect(ctx, url)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		ac.redis = client
		ac.Engine.Users = cache.NewUsers(eng.Repo, client, cfg.Cache.UserTTL)
		eng.Log.WithField("ttl", cfg.Cache.UserTTL.String()).Debug("user cache enabled")
	}
	n, err := ac.Engine.SeedUsers(ctx, cfg.Users)
	if err != nil {
		ac.Close()
		return nil, err
	}
	if n > 0 {
		eng.Log.WithField("count", n).Info("seeded users")
	}
	return ac, nil
}

func (c *Context) Close() error {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	return c.DB.Close()
}
