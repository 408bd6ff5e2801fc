package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/clock"
	"github.com/groundswell-app/groundswell/internal/config"
	"github.com/groundswell-app/groundswell/internal/migration"
	"github.com/groundswell-app/groundswell/internal/observability"
	"github.com/groundswell-app/groundswell/internal/server"
	"github.com/groundswell-app/groundswell/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
