package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/meetcreator/roomdrop/internal/protocol"
	"github.com/meetcreator/roomdrop/internal/utils"
)

// PeerTableView renders room members. self is marked so the user can tell
// their own entry apart.
func PeerTableView(peers []protocol.Peer, self string) string {
	if len(peers) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	rows := make([][]string, 0, len(peers))
	for i, p := range peers {
		name := utils.TruncateString(p.Name(), 30)
		if p.ID == self {
			name += " (you)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, p.ID})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "ID").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

type TransferSummary struct {
	Status   string
	File     string
	Peer     string
	Size     int64
	Duration string
	Speed    string
	SavedTo  string
}

// TransferSummaryView renders the post-transfer statistics table.
func TransferSummaryView(title string, summary TransferSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Status", summary.Status},
		{"File", summary.File},
		{"Peer", summary.Peer},
		{"Size", utils.FormatSize(summary.Size)},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	})
	if summary.SavedTo != "" {
		t.AppendRow(prettytable.Row{"Saved To", summary.SavedTo})
	}
	t.SetStyle(prettytable.StyleRounded)
	return t.Render()
}

func RenderTransferSummary(title string, summary TransferSummary) {
	fmt.Fprintln(Output, TransferSummaryView(title, summary))
}
