package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/splitfold/royalty/internal/clock"
	"github.com/splitfold/royalty/internal/config"
	"github.com/splitfold/royalty/internal/migration"
	"github.com/splitfold/royalty/internal/observability"
	"github.com/splitfold/royalty/internal/server"
	"github.com/splitfold/royalty/pkg/db"
	"github.com/splitfold/royalty/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
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
