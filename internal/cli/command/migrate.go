package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/cli/output"
)

// MigrateCommand returns the migrate command.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Move legacy saves into the save database",
		Description: "Legacy saves are moved only when the save database is created. " +
			"Running migrate against an existing database is a no-op.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "No progress output"},
		},
		Action: migrate,
	}
}

func migrate(c *cli.Context) error {
	rt, err := runtimeFor(c, false)
	if err != nil {
		return err
	}

	var spin *output.Spinner
	if !c.Bool("quiet") {
		spin = output.NewSpinner(errWriter(c), "migrating legacy saves")
		spin.Start()
	}

	if err := rt.Engine.Saves().Open(c.Context); err != nil {
		if spin != nil {
			spin.Fail("save database unavailable")
		}
		return err
	}
	n, err := rt.Engine.Saves().MigrateLegacy(c.Context)
	if err != nil {
		if spin != nil {
			spin.Fail(err.Error())
		}
		return err
	}
	if spin != nil {
		spin.Stop()
	}

	if n == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing to migrate")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Migrated %d save(s)\n", n)
	return nil
}
