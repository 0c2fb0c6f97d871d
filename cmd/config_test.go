package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/derad-network/derad/io/file"
	"github.com/derad-network/derad/testing/assert"
	"github.com/derad-network/derad/testing/require"
)

func TestWrapFlags_LoadsValuesFromConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	body := "verbosity: debug\n" +
		"trace-sample-fraction: 0.5\n" +
		"enable-db-backup-webhook: true\n" +
		"db-backup-output-dir: /var/backups/derad\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0600))

	appFlags := WrapFlags([]cli.Flag{
		VerbosityFlag,
		TraceSampleFractionFlag,
		EnableBackupWebhookFlag,
		BackupWebhookOutputDir,
		MaxGoroutines,
		ConfigFileFlag,
	})

	var (
		verbosity string
		fraction  float64
		webhook   bool
		outputDir string
		routines  int64
	)
	app := &cli.App{
		Flags: appFlags,
		Before: func(ctx *cli.Context) error {
			return LoadFlagsFromConfig(ctx, appFlags)
		},
		Action: func(ctx *cli.Context) error {
			verbosity = ctx.String(VerbosityFlag.Name)
			fraction = ctx.Float64(TraceSampleFractionFlag.Name)
			webhook = ctx.Bool(EnableBackupWebhookFlag.Name)
			outputDir = ctx.String(BackupWebhookOutputDir.Name)
			routines = ctx.Int64(MaxGoroutines.Name)
			return nil
		},
	}

	// The goroutine ceiling comes from the command line, everything else
	// from the file.
	require.NoError(t, app.Run([]string{"derad", "--config-file", configPath, "--max-goroutines", "1234"}))
	assert.Equal(t, "debug", verbosity)
	assert.Equal(t, 0.5, fraction)
	assert.Equal(t, true, webhook)
	assert.Equal(t, "/var/backups/derad", outputDir)
	assert.Equal(t, int64(1234), routines)
}

func TestWrapFlags_CommandLineOverridesConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("verbosity: debug\n"), 0600))

	appFlags := WrapFlags([]cli.Flag{VerbosityFlag, ConfigFileFlag})

	var verbosity string
	app := &cli.App{
		Flags: appFlags,
		Before: func(ctx *cli.Context) error {
			return LoadFlagsFromConfig(ctx, appFlags)
		},
		Action: func(ctx *cli.Context) error {
			verbosity = ctx.String(VerbosityFlag.Name)
			return nil
		},
	}

	require.NoError(t, app.Run([]string{"derad", "--config-file", configPath, "--verbosity", "trace"}))
	assert.Equal(t, "trace", verbosity)
}

func TestLoadFlagsFromConfig_NoConfigFile(t *testing.T) {
	appFlags := WrapFlags([]cli.Flag{VerbosityFlag, ConfigFileFlag})

	var verbosity string
	app := &cli.App{
		Flags: appFlags,
		Before: func(ctx *cli.Context) error {
			return LoadFlagsFromConfig(ctx, appFlags)
		},
		Action: func(ctx *cli.Context) error {
			verbosity = ctx.String(VerbosityFlag.Name)
			return nil
		},
	}

	require.NoError(t, app.Run([]string{"derad"}))
	assert.Equal(t, VerbosityFlag.Value, verbosity)
}

func TestDefaultDataDir(t *testing.T) {
	home := file.HomeDir()
	if home == "" {
		t.Skip("no home directory resolved")
	}
	var want string
	switch runtime.GOOS {
	case "darwin":
		want = filepath.Join(home, "Library", "Derad")
	case "windows":
		want = filepath.Join(home, "AppData", "Local", "Derad")
	default:
		want = filepath.Join(home, ".derad")
	}
	assert.Equal(t, want, DefaultDataDir())
}
