package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/cli/output"
	"github.com/yndnr/storyline-go/internal/config"
	"github.com/yndnr/storyline-go/internal/infra/buildinfo"
	"github.com/yndnr/storyline-go/internal/savestore"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			info := buildinfo.Get(savestore.SchemaVersion)
			if format, _ := output.ParseFormat(c.String("output")); format == output.FormatTable {
				fmt.Fprintln(c.App.Writer, info.String())
				return nil
			}
			return Print(c, info)
		},
	}
}

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the merged configuration with secrets masked",
				Action: func(c *cli.Context) error {
					cfg := config.Sanitize(GetConfig(c))
					if format, _ := output.ParseFormat(c.String("output")); format == output.FormatTable {
						return output.NewFormatter(output.FormatYAML, false).Format(c.App.Writer, cfg)
					}
					return Print(c, cfg)
				},
			},
		},
	}
}
