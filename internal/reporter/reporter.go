package reporter

import (
	"backpack-grid-bot-go/internal/models"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintLadder 在每次网格（重）建后打印当前一代的完整档位表，
// 方便操作者核对挂单布局。
func PrintLadder(symbol string, ladder *models.Ladder, referencePrice float64) {
	if ladder == nil || len(ladder.Levels) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s grid  generation %d  reference %.6f", symbol, ladder.Generation, referencePrice))
	t.AppendHeader(table.Row{"#", "Client ID", "Side", "Price"})

	for _, level := range ladder.Levels {
		t.AppendRow(table.Row{level.Index, level.ClientID, coloredSide(level.Side), fmt.Sprintf("%.6f", level.Price)})
	}
	t.Render()
}

// PrintSessionSummary 在停机时打印最近的事件日志，还原本次会话的网格历史。
func PrintSessionSummary(entries []models.JournalEntry) {
	if len(entries) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("session events")
	t.AppendHeader(table.Row{"Time", "Kind", "Gen", "Client ID", "Side", "Price", "Quantity", "Detail"})

	for _, e := range entries {
		clientID := ""
		if e.Kind == "orderPlaced" || e.Kind == "orderRecreated" {
			clientID = fmt.Sprintf("%d", e.ClientID)
		}
		t.AppendRow(table.Row{
			e.Time.Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Generation,
			clientID,
			string(e.Side),
			trimZero(e.Price),
			trimZero(e.Quantity),
			e.Detail,
		})
	}
	t.Render()
}

func coloredSide(side models.Side) string {
	if side == models.Bid {
		return text.FgGreen.Sprint(side)
	}
	return text.FgRed.Sprint(side)
}

func trimZero(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%.6f", v)
}
