package main

import (
	"github.com/axiomprotocol/susu/internal/config"
	"github.com/axiomprotocol/susu/internal/migration"
	"github.com/axiomprotocol/susu/internal/scheduler"
	"github.com/axiomprotocol/susu/internal/server"
	"github.com/axiomprotocol/susu/pkg/db"
	"github.com/axiomprotocol/susu/pkg/log"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
