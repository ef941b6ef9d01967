package main

import (
	"path/filepath"
	"strconv"

	"github.com/franz/music-shelver/internal/organize"
	"github.com/franz/music-shelver/internal/restore"
	"github.com/franz/music-shelver/internal/util"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// previewRows caps dry-run tables; the event log has every row
const previewRows = 200

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetAllowedRowLength(util.GetTerminalWidth())

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// relTo shortens path for display
func relTo(base, path string) string {
	if base == "" || path == "" {
		return path
	}
	if rel, err := filepath.Rel(base, path); err == nil && util.IsWithin(path, base) {
		return rel
	}
	return path
}

func organizePreview(s *organize.Summary, source, target string) string {
	var rows [][]string
	for i, r := range s.Results {
		if i >= previewRows {
			rows = append(rows, []string{"...", strconv.Itoa(len(s.Results)-previewRows) + " more", "", ""})
			break
		}
		rows = append(rows, []string{
			relTo(source, r.Path),
			relTo(target, r.Target),
			string(r.Status),
			r.Reason,
		})
	}
	return renderTable([]string{"File", "Target", "Status", "Reason"}, rows, nil)
}

func restorePreview(plan *restore.Plan) string {
	var rows [][]string
	for i, it := range plan.Items {
		if i >= previewRows {
			rows = append(rows, []string{"...", strconv.Itoa(len(plan.Items)-previewRows) + " more", ""})
			break
		}
		companions := ""
		if n := len(it.Companions); n > 0 {
			companions = strconv.Itoa(n)
		}
		rows = append(rows, []string{relTo(plan.Root, it.Current), it.Destination, companions})
	}
	return renderTable([]string{"Current", "Restore to", "Companions"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}
