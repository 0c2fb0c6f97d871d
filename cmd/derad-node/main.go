// Package main defines the derad node binary. It polls an ADS-B receiver,
// archives aircraft position changes to permanent storage and streams live
// statistics to subscribers.
package main

import (
	"fmt"
	"os"
	"runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/derad-network/derad/cmd"
	"github.com/derad-network/derad/cmd/derad-node/flags"
	"github.com/derad-network/derad/io/logs"
	"github.com/derad-network/derad/runtime/debug"
	"github.com/derad-network/derad/runtime/prereqs"
	"github.com/derad-network/derad/runtime/tos"
	"github.com/derad-network/derad/runtime/version"
	"github.com/derad-network/derad/tracker/node"
)

var log = logrus.WithField("prefix", "main")

func startNode(cliCtx *cli.Context) error {
	// Verify if ToS is accepted.
	if err := tos.VerifyTosAcceptedOrPrompt(cliCtx); err != nil {
		return err
	}

	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	prereqs.WarnIfPlatformNotSupported(cliCtx.Context)

	tracker, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	tracker.Start()
	return nil
}

var appFlags = []cli.Flag{
	flags.AntennaFlag,
	flags.WalletDirFlag,
	flags.WalletKeyNameFlag,
	flags.EncryptionKeyFlag,
	flags.DBPathFlag,
	flags.GatewayURLFlag,
	flags.KeyShareURLFlag,
	flags.MonitoringPortFlag,
	flags.StreamHostFlag,
	flags.StreamPortFlag,
	flags.WSAllowedOriginsFlag,
	flags.NodeTypeFlag,
	flags.BeastPortFlag,
	flags.APIPortFlag,
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.DisableMonitoringFlag,
	cmd.MonitoringHostFlag,
	cmd.ForceClearDB,
	cmd.ClearDB,
	cmd.LogFormat,
	cmd.MaxGoroutines,
	cmd.LogFileName,
	cmd.ConfigFileFlag,
	cmd.AcceptTosFlag,
	cmd.EnableBackupWebhookFlag,
	cmd.BackupWebhookOutputDir,
}

func init() {
	appFlags = cmd.WrapFlags(append(appFlags, debug.Flags...))
}

func main() {
	app := cli.App{}
	app.Name = "derad-node"
	app.Usage = `launches an aircraft tracking node that polls an ADS-B receiver, ` +
		`archives position changes to the permanent storage network and streams live statistics`
	app.Version = version.GetVersion()
	app.Action = startNode
	app.Flags = appFlags

	app.Before = func(ctx *cli.Context) error {
		// Load flags from config file, if specified.
		if err := cmd.LoadFlagsFromConfig(ctx, app.Flags); err != nil {
			return err
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logs.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return debug.Setup(ctx)
	}

	app.After = func(ctx *cli.Context) error {
		debug.Exit(ctx)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
