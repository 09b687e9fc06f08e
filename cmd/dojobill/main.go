package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/dojohq/dojobill/internal/config"
	"github.com/dojohq/dojobill/internal/migration"
	"github.com/dojohq/dojobill/internal/seed"
	"github.com/dojohq/dojobill/internal/server"
	"github.com/dojohq/dojobill/pkg/db"
	"github.com/dojohq/dojobill/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,

		// Domain modules are pulled in by the server module.
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
