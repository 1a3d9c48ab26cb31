package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/smallbiznis/clinicdesk/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := Run(conn, cfg.DBType); err != nil {
			return err
		}
		log.Info("database schema ready", zap.String("db_type", cfg.DBType))

		if !cfg.SeedDemoData {
			return nil
		}
		if err := seed.EnsureDemoData(conn, node); err != nil {
			return err
		}
		log.Info("demo data seeded")
		return nil
	}),
)
