// Package redisstore keeps the last known status of every check in
// Redis, one hash per check keyed by name, so dashboards and other
// consumers can read current state without talking to the server.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radarhq/radar/internal/plugin"
)

const keyPrefix = "radar:check:"

// Plugin mirrors check state into Redis on every reply.
type Plugin struct {
	plugin.Base

	addr     string
	password string
	db       int
	rdb      *redis.Client
}

// New creates the plugin; the connection is established in Configure.
func New(addr, password string, db int) *Plugin {
	return &Plugin{Base: plugin.NewBase(), addr: addr, password: password, db: db}
}

func (p *Plugin) Name() string    { return "redis-store" }
func (p *Plugin) Version() string { return "1.0.0" }

// Configure connects and pings; a dead Redis fails plugin setup rather
// than the first reply.
func (p *Plugin) Configure(logger *slog.Logger) error {
	if err := p.Base.Configure(logger); err != nil {
		return err
	}

	p.rdb = redis.NewClient(&redis.Options{
		Addr:         p.addr,
		Password:     p.password,
		DB:           p.db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		p.rdb.Close()
		return fmt.Errorf("redis ping failed (%s): %w", p.addr, err)
	}
	p.Logger.Info("redis connected", "addr", p.addr, "db", p.db)
	return nil
}

func (p *Plugin) OnCheckReply(reply plugin.Reply) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := p.rdb.Pipeline()
	for _, c := range reply.Checks {
		pipe.HSet(ctx, keyPrefix+c.Name,
			"status", int(c.CurrentStatus),
			"previous_status", int(c.PreviousStatus),
			"details", c.Details,
			"address", reply.Address,
			"updated_at", time.Now().Unix(),
		)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Plugin) OnShutdown() error {
	if p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
