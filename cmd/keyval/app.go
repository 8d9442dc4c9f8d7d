package keyval

import (
	"fmt"
	"runtime"

	"go.miragespace.co/keyval/cmd/client"
	"go.miragespace.co/keyval/cmd/server"
	"go.miragespace.co/keyval/util"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Build = "head"
)

var (
	App = cli.App{
		Name:            "keyval",
		Usage:           fmt.Sprintf("build for %s on %s", runtime.GOARCH, runtime.GOOS),
		Version:         Build,
		HideHelpCommand: true,
		Description:     "peer-to-peer key value store on a consistent hash ring, with gossip membership and replication",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "human readable debug logging, overrides --log-level",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "minimum level of structured logs: debug, info, warn or error",
				EnvVars: []string{"KEYVAL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			server.Generate(),
			client.Generate(),
		},
		Before: ConfigLogger,
	}
)

func init() {
	util.PrettierHelpPrinter()
}

// ConfigLogger builds the logger shared by every command and stores it in
// App.Metadata["logger"]. Output always goes to stderr so the client command
// can keep stdout for values.
func ConfigLogger(ctx *cli.Context) error {
	var config zap.Config
	if ctx.Bool("verbose") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		level, err := zapcore.ParseLevel(ctx.String("log-level"))
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
	}
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return err
	}
	if _, err := zap.RedirectStdLogAt(logger.With(zap.String("subsystem", "stdlog")), zapcore.InfoLevel); err != nil {
		return fmt.Errorf("redirecting stdlog output: %w", err)
	}
	ctx.App.Metadata["logger"] = logger

	return nil
}
