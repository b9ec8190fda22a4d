package main

import (
	"github.com/urfave/cli/v2"

	"blobstore/internal/config"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Value: "",
		Usage: "path to a TOML config file (missing files fall back to defaults)",
	},
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "driver",
		Usage: "blob backend: fs, sql, s3 or memory",
	},
	&cli.StringFlag{
		Name:  "fs-root",
		Usage: "parent directory of the managed blobstore folder (driver=fs)",
	},
	&cli.StringFlag{
		Name:  "sql-dialect",
		Usage: "sql dialect: sqlite or postgres",
	},
	&cli.StringFlag{
		Name:  "sql-root",
		Usage: "sqlite directory; empty keeps the database in memory",
	},
	&cli.StringFlag{
		Name:  "sql-file",
		Usage: "sqlite file name under sql-root",
	},
	&cli.StringFlag{
		Name:  "sql-dsn",
		Usage: "postgres connection string",
	},
	&cli.StringFlag{
		Name:  "sql-username",
		Usage: "database user",
	},
	&cli.StringFlag{
		Name:  "sql-password",
		Usage: "database password",
	},
	&cli.StringFlag{
		Name:  "trace-json",
		Usage: "append one JSON line per blob operation to this file",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "blobstored",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

// applyFlags copies explicitly set flags over the file and environment config.
func applyFlags(cCtx *cli.Context, cfg *config.Config) error {
	setString := func(dst *string, name string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.String(name)
		}
	}
	setBool := func(dst *bool, name string) {
		if cCtx.IsSet(name) {
			*dst = cCtx.Bool(name)
		}
	}

	setString(&cfg.Server.ListenAddr, "listen-addr")
	setBool(&cfg.Server.Pprof, "pprof")
	if cCtx.IsSet("drain-seconds") {
		cfg.Server.DrainSeconds = cCtx.Int64("drain-seconds")
	}
	setString(&cfg.Server.TraceJSON, "trace-json")

	setBool(&cfg.Log.JSON, "log-json")
	setBool(&cfg.Log.Debug, "log-debug")
	setBool(&cfg.Log.UID, "log-uid")
	setString(&cfg.Log.Service, "log-service")

	setString(&cfg.Blob.Driver, "driver")
	setString(&cfg.Blob.FSRoot, "fs-root")
	setString(&cfg.Blob.SQL.Dialect, "sql-dialect")
	setString(&cfg.Blob.SQL.Root, "sql-root")
	setString(&cfg.Blob.SQL.File, "sql-file")
	setString(&cfg.Blob.SQL.DSN, "sql-dsn")
	setString(&cfg.Blob.SQL.Username, "sql-username")
	setString(&cfg.Blob.SQL.Password, "sql-password")

	cfg.Normalize()
	return cfg.Validate()
}
