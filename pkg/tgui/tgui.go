package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is one inline callback button.
type Button struct {
	Text string
	// Data is sent verbatim as callback_data (no telebot "\f" prefix).
	Data string
}

// Keyboard renders rows of buttons as an inline keyboard. Empty rows are
// skipped; no rows at all yields nil.
func Keyboard(rows ...[]Button) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		btns := make([]tele.Btn, len(row))
		for i, b := range row {
			btns[i] = tele.Btn{Text: b.Text, Data: b.Data}
		}
		out = append(out, rm.Row(btns...))
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
