package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/cli/output"
	"github.com/yndnr/storyline-go/internal/config"
	"github.com/yndnr/storyline-go/internal/infra/buildinfo"
	"github.com/yndnr/storyline-go/internal/infra/confloader"
	"github.com/yndnr/storyline-go/internal/savestore"
	"github.com/yndnr/storyline-go/internal/telemetry/logger"
)

const (
	metaConfig  = "config"
	metaLoader  = "loader"
	metaRuntime = "runtime"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "storyline",
		Usage:   "Inspect and manage storyline saves",
		Version: buildinfo.Get(savestore.SchemaVersion).Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SavesCommand(),
			MigrateCommand(),
			SettingsCommand(),
			PlayCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: loadConfig,
		After:  closeRuntime,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"STORYLINE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Directory holding the save database and legacy store",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Save database backend: badger, legacy",
		},
		&cli.StringFlag{
			Name:  "story",
			Usage: "Story ID recorded in save details",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error, off",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// flagOverrides maps explicitly set global flags to config keys.
var flagOverrides = map[string]string{
	"data-dir":  "storage.data_dir",
	"backend":   "storage.backend",
	"story":     "story.id",
	"log-level": "log.level",
}

func loadConfig(c *cli.Context) error {
	overrides := map[string]any{}
	for flag, key := range flagOverrides {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithOverrides(overrides),
	)
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := output.ParseFormat(c.String("output")); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: errWriter(c)})
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaLoader] = loader
	return nil
}

func closeRuntime(c *cli.Context) error {
	if rt, ok := c.App.Metadata[metaRuntime].(*Runtime); ok {
		delete(c.App.Metadata, metaRuntime)
		return rt.Close(c.Context)
	}
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[metaConfig].(*config.Config)
	return cfg
}

// Print formats data with the selected output format.
func Print(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}
