package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pingkeeper/internal/config"
	"pingkeeper/internal/storage"
	logx "pingkeeper/pkg/logx"
)

// PrintAudit writes the newest limit audit entries from the configured
// store. It does not contact Telegram.
func PrintAudit(ctx context.Context, cfgPath string, limit int, w io.Writer) error {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return errors.New("storage is disabled; set storage.driver to read the audit log")
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentAudit(ctx, limit)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Actor", "Owner", "Action", "OK", "Target", "Detail"})
	for _, e := range entries {
		actor := fmt.Sprint(e.ActorID)
		if e.Username != "" {
			actor += " (@" + e.Username + ")"
		}
		t.AppendRow(table.Row{
			e.At.Local().Format(time.DateTime),
			actor,
			e.OwnerID,
			colorizeAction(e.Action),
			e.OK,
			e.Target,
			e.Detail,
		})
	}
	t.Render()
	return nil
}

func colorizeAction(action string) string {
	if action == storage.ActionDenied {
		return text.FgRed.Sprint(action)
	}
	return action
}
