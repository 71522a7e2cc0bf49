package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/cli/output"
	"github.com/yndnr/storyline-go/internal/core/domain"
)

// settingFields maps setting names, as used in configuration files, to
// their field.
var settingFields = map[string]func(*domain.Settings) *bool{
	"warn_save":         func(s *domain.Settings) *bool { return &s.WarnSave },
	"warn_load":         func(s *domain.Settings) *bool { return &s.WarnLoad },
	"warn_delete":       func(s *domain.Settings) *bool { return &s.WarnDelete },
	"active":            func(s *domain.Settings) *bool { return &s.Active },
	"use_delta":         func(s *domain.Settings) *bool { return &s.UseDelta },
	"compress_autosave": func(s *domain.Settings) *bool { return &s.CompressAutosave },
}

// SettingsCommand returns the settings subcommand group.
func SettingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Manage save preferences",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the stored settings",
				Action: settingsShow,
			},
			{
				Name:      "set",
				Usage:     "Change settings",
				ArgsUsage: "NAME=true|false ...",
				Action:    settingsSet,
			},
			{
				Name:   "reset",
				Usage:  "Restore the configured defaults",
				Action: settingsReset,
			},
		},
	}
}

func settingsTable(s domain.Settings) *output.Table {
	names := make([]string, 0, len(settingFields))
	for name := range settingFields {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &output.Table{Headers: []string{"NAME", "VALUE"}}
	for _, name := range names {
		t.AddRow(name, strconv.FormatBool(*settingFields[name](&s)))
	}
	return t
}

func printSettings(c *cli.Context, s domain.Settings) error {
	if format, _ := output.ParseFormat(c.String("output")); format == output.FormatTable {
		return Print(c, settingsTable(s))
	}
	return Print(c, s)
}

func settingsShow(c *cli.Context) error {
	rt, err := runtimeFor(c, false)
	if err != nil {
		return err
	}
	return printSettings(c, rt.Engine.Settings())
}

// parseAssignments parses NAME=BOOL pairs.
func parseAssignments(args []string) (func(*domain.Settings), error) {
	if len(args) == 0 {
		return nil, cli.Exit("at least one NAME=VALUE is required", 2)
	}
	type assignment struct {
		field func(*domain.Settings) *bool
		value bool
	}
	var assigns []assignment
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected NAME=VALUE", arg)
		}
		field, known := settingFields[strings.ReplaceAll(strings.ToLower(name), "-", "_")]
		if !known {
			return nil, fmt.Errorf("unknown setting %q", name)
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		assigns = append(assigns, assignment{field, value})
	}
	return func(s *domain.Settings) {
		for _, a := range assigns {
			*a.field(s) = a.value
		}
	}, nil
}

func settingsSet(c *cli.Context) error {
	apply, err := parseAssignments(c.Args().Slice())
	if err != nil {
		return err
	}
	rt, err := runtimeFor(c, false)
	if err != nil {
		return err
	}
	next, err := rt.Engine.UpdateSettings(c.Context, apply)
	if err != nil {
		return err
	}
	return printSettings(c, next)
}

func settingsReset(c *cli.Context) error {
	rt, err := runtimeFor(c, false)
	if err != nil {
		return err
	}
	defaults := rt.Config.Saves
	next, err := rt.Engine.UpdateSettings(c.Context, func(s *domain.Settings) { *s = defaults })
	if err != nil {
		return err
	}
	return printSettings(c, next)
}
