package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// jobRow is one line of the jobs listing.
type jobRow struct {
	Name     string
	Location string
	Profile  string
	Stages   string
	Updated  string
	Error    string
}

// renderJobsTable formats the jobs listing. The stage counter is the only
// numeric column and is right-aligned; everything else reads left to right.
func renderJobsTable(rows []jobRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"JOB", "LOCATION", "PROFILE", "STAGES", "UPDATED", "ERROR"})
	for _, row := range rows {
		tw.AppendRow(table.Row{row.Name, row.Location, row.Profile, row.Stages, row.Updated, row.Error})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
