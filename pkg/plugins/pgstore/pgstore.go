// Package pgstore appends every check reply to a Postgres table, giving
// Radar a queryable reply history.
package pgstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/radarhq/radar/internal/plugin"
)

const schema = `
CREATE TABLE IF NOT EXISTS check_replies (
	id             BIGSERIAL PRIMARY KEY,
	client_address TEXT        NOT NULL,
	client_port    INTEGER     NOT NULL,
	check_name     TEXT        NOT NULL,
	status         INTEGER     NOT NULL,
	details        TEXT        NOT NULL DEFAULT '',
	data           JSONB,
	received_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insert = `
INSERT INTO check_replies (client_address, client_port, check_name, status, details, data)
VALUES ($1, $2, $3, $4, $5, $6)`

// Plugin persists reply history.
type Plugin struct {
	plugin.Base

	dsn string
	db  *sql.DB
}

// New creates the plugin; the database is opened in Configure.
func New(dsn string) *Plugin {
	return &Plugin{Base: plugin.NewBase(), dsn: dsn}
}

func (p *Plugin) Name() string    { return "postgres-store" }
func (p *Plugin) Version() string { return "1.0.0" }

// Configure opens the pool, verifies connectivity and ensures the table.
func (p *Plugin) Configure(logger *slog.Logger) error {
	if err := p.Base.Configure(logger); err != nil {
		return err
	}

	db, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return fmt.Errorf("can't open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("can't ensure check_replies table: %w", err)
	}
	p.db = db
	p.Logger.Info("postgres connected")
	return nil
}

func (p *Plugin) OnCheckReply(reply plugin.Reply) error {
	for _, c := range reply.Checks {
		var data []byte
		if c.Data != nil {
			var err error
			if data, err = json.Marshal(c.Data); err != nil {
				return err
			}
		}
		if _, err := p.db.Exec(insert,
			reply.Address, reply.Port, c.Name, int(c.CurrentStatus), c.Details, data); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) OnShutdown() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
