package main

import (
	"github.com/smallbiznis/clinicdesk/internal/audit"
	"github.com/smallbiznis/clinicdesk/internal/billing"
	"github.com/smallbiznis/clinicdesk/internal/catalog"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/smallbiznis/clinicdesk/internal/migration"
	"github.com/smallbiznis/clinicdesk/internal/observability"
	"github.com/smallbiznis/clinicdesk/internal/party"
	"github.com/smallbiznis/clinicdesk/internal/ratelimit"
	"github.com/smallbiznis/clinicdesk/internal/server"
	"github.com/smallbiznis/clinicdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(databaseConfig),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		// Functional Domains
		catalog.Module,
		party.Module,
		billing.Module,
		audit.Module,

		server.Module,
	)
	app.Run()
}

func databaseConfig(cfg config.Config) db.Config {
	return cfg.Database()
}
