package common

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/session"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// RenderSnapshot writes the timing rows followed by the race control messages
func RenderSnapshot(w io.Writer, snap *model.TimingSnapshot, title string) {
	if snap == nil {
		fmt.Fprintln(w, "no snapshot available")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{
		"Pos", "No", "Driver", "Team", "Interval", "Gap", "Last", "S1", "S2", "S3", "Pits", "Tyre",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 11, Align: text.AlignRight},
	})
	for i := range snap.Rows {
		r := &snap.Rows[i]
		pos := "-"
		if r.Position > 0 {
			pos = strconv.Itoa(r.Position)
		}
		t.AppendRow(table.Row{
			pos, r.DriverNumber, r.Code, r.TeamName, r.Interval, r.GapToLeader,
			r.LastLap, r.Sector1, r.Sector2, r.Sector3, r.PitStops, r.Tyre,
		})
	}
	t.Render()

	if len(snap.RaceControl) == 0 {
		return
	}
	rc := table.NewWriter()
	rc.SetOutputMirror(w)
	rc.SetStyle(table.StyleRounded)
	rc.SetTitle("Race control")
	rc.AppendHeader(table.Row{"Time", "Category", "Message"})
	for _, m := range snap.RaceControl {
		rc.AppendRow(table.Row{m.Date.UTC().Format("15:04:05"), m.Category, m.Message})
	}
	rc.Render()
}

// RenderBootstrap writes a summary of the session selection and the snapshot
func RenderBootstrap(w io.Writer, b *model.TimingBootstrap, now time.Time) {
	fmt.Fprintf(w, "Mode:    %s\n", b.Mode)
	fmt.Fprintf(w, "Session: %s\n", session.SessionLabel(b.SelectedSession))
	if b.NextSession != nil {
		fmt.Fprintf(w, "Next:    %s (%s)\n",
			session.SessionLabel(b.NextSession), session.Countdown(b.NextSession, now))
	}
	if b.Snapshot != nil && !b.Snapshot.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated: %s\n", humanize.RelTime(b.Snapshot.UpdatedAt, now, "ago", "from now"))
	}
	if len(b.WeekendSessions) > 0 {
		names := make([]string, 0, len(b.WeekendSessions))
		for i := range b.WeekendSessions {
			names = append(names, b.WeekendSessions[i].SessionName)
		}
		fmt.Fprintf(w, "Weekend: %v\n", names)
	}
	title := ""
	if b.Snapshot != nil {
		title = b.Snapshot.SessionType
	}
	RenderSnapshot(w, b.Snapshot, title)
}

// RenderJSON writes v as indented JSON. A non empty path selects the matching
// parts of the document, they are written as JSON array.
func RenderJSON(w io.Writer, v any, path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	obj, err := oj.Parse(data)
	if err != nil {
		return err
	}
	if path != "" {
		x, err := jp.ParseString(path)
		if err != nil {
			return fmt.Errorf("invalid jsonpath %q: %w", path, err)
		}
		res := x.Get(obj)
		if res == nil {
			res = []any{}
		}
		obj = res
	}
	_, err = fmt.Fprintln(w, oj.JSON(obj, &oj.Options{Indent: 2, Sort: true}))
	return err
}
