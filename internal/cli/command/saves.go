package command

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/savestore"
)

// SaveRow is one line of `saves list`.
type SaveRow struct {
	Slot     int       `json:"slot"`
	Kind     string    `json:"kind"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	SaveID   string    `json:"saveId" table:"wide"`
	SaveName string    `json:"saveName" table:"wide"`
	Story    string    `json:"story" table:"wide"`
}

// SaveView is the summary printed by `saves show`.
type SaveView struct {
	Slot       int            `json:"slot"`
	Title      string         `json:"title"`
	Date       time.Time      `json:"date"`
	SaveID     string         `json:"saveId"`
	SaveName   string         `json:"saveName"`
	Moments    int            `json:"moments"`
	Index      int            `json:"index"`
	Compressed bool           `json:"compressed"`
	Expired    int            `json:"expired"`
	Extra      map[string]any `json:"extra"`
}

// SavesCommand returns the saves subcommand group.
func SavesCommand() *cli.Command {
	forceFlag := &cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Skip confirmation",
	}
	return &cli.Command{
		Name:  "saves",
		Usage: "Inspect and edit save slots",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List saves",
				Action: savesList,
			},
			{
				Name:      "show",
				Usage:     "Show one save",
				ArgsUsage: "SLOT",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "raw", Usage: "Print the stored snapshot"},
				},
				Action: savesShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a save",
				ArgsUsage: "SLOT",
				Flags:     []cli.Flag{forceFlag},
				Action:    savesDelete,
			},
			{
				Name:   "clear",
				Usage:  "Delete every save",
				Flags:  []cli.Flag{forceFlag},
				Action: savesClear,
			},
			{
				Name:   "latest",
				Usage:  "Show the save Continue would load",
				Action: savesLatest,
			},
		},
	}
}

func toRow(rec domain.DetailsRecord) SaveRow {
	kind := "user"
	if rec.Slot == domain.AutosaveSlot {
		kind = "auto"
	}
	return SaveRow{
		Slot:     rec.Slot,
		Kind:     kind,
		Title:    rec.Data.Title,
		Date:     rec.Data.Time(),
		SaveID:   rec.Data.Metadata.SaveID,
		SaveName: rec.Data.Metadata.SaveName,
		Story:    rec.Data.ID,
	}
}

func savesList(c *cli.Context) error {
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	details, err := rt.Engine.Details(c.Context)
	if err != nil {
		return err
	}
	rows := make([]SaveRow, 0, len(details))
	for _, d := range details {
		rows = append(rows, toRow(d))
	}
	return Print(c, rows)
}

func savesShow(c *cli.Context) error {
	slot, err := slotArg(c)
	if err != nil {
		return err
	}
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	rec, err := rt.Engine.Saves().Get(c.Context, slot)
	if err != nil {
		return err
	}
	if c.Bool("raw") {
		return Print(c, rec)
	}

	view := SaveView{Slot: slot, Moments: rec.Data.Len(), Index: rec.Data.IndexValue(),
		Compressed: rec.Data.Compressed(), Expired: len(rec.Data.Expired), SaveID: rec.Data.SaveID}
	details, err := rt.Engine.Details(c.Context)
	if err != nil {
		return err
	}
	for _, d := range details {
		if d.Slot == slot {
			view.Title = d.Data.Title
			view.Date = d.Data.Time()
			view.SaveName = d.Data.Metadata.SaveName
			view.Extra = d.Data.Metadata.Extra
			if view.SaveID == "" {
				view.SaveID = d.Data.Metadata.SaveID
			}
		}
	}
	return Print(c, view)
}

func savesDelete(c *cli.Context) error {
	slot, err := slotArg(c)
	if err != nil {
		return err
	}
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	if rt.Engine.Settings().WarnDelete && !c.Bool("force") {
		if !confirm(c, fmt.Sprintf("Delete save in slot %d?", slot)) {
			return cli.Exit("aborted", 1)
		}
	}
	status, err := rt.Engine.Delete(c.Context, slot)
	if err := statusError(status, err); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted slot %d\n", slot)
	return nil
}

func savesClear(c *cli.Context) error {
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	if !c.Bool("force") {
		if !confirm(c, "Delete every save?") {
			return cli.Exit("aborted", 1)
		}
	}
	status, err := rt.Engine.Clear(c.Context)
	if err := statusError(status, err); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "All saves deleted")
	return nil
}

func savesLatest(c *cli.Context) error {
	rt, err := runtimeFor(c, true)
	if err != nil {
		return err
	}
	details, err := rt.Engine.Details(c.Context)
	if err != nil {
		return err
	}
	latest, ok := savestore.MostRecent(details)
	if !ok {
		return cli.Exit("no saves", 1)
	}
	return Print(c, toRow(latest))
}

func slotArg(c *cli.Context) (int, error) {
	if c.NArg() < 1 {
		return 0, cli.Exit("SLOT is required", 2)
	}
	return parseSlot(c.Args().First())
}

func parseSlot(s string) (int, error) {
	if s == "auto" {
		return domain.AutosaveSlot, nil
	}
	slot, err := strconv.Atoi(s)
	if err != nil {
		return 0, domain.ErrSlotInvalid.WithDetails(s)
	}
	if err := domain.ValidateSlot(slot); err != nil {
		return 0, err
	}
	return slot, nil
}

func statusError(status savestore.Status, err error) error {
	if err != nil {
		return err
	}
	if status != savestore.StatusOK {
		return fmt.Errorf("save store: %s", status)
	}
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(c *cli.Context, question string) bool {
	var in io.Reader = os.Stdin
	if c.App.Reader != nil {
		in = c.App.Reader
	}
	fmt.Fprintf(c.App.Writer, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
