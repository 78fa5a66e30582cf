package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H are already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// Lines joins non-empty parts with newlines.
func Lines(parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, "\n"))
}

// F formats already-safe fragments. Arguments of type H are inserted as-is;
// everything else is escaped.
func F(format string, args ...any) H {
	safe := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case H:
			safe[i] = v.String()
		case string:
			safe[i] = html.EscapeString(v)
		default:
			safe[i] = html.EscapeString(fmt.Sprint(v))
		}
	}
	return H(fmt.Sprintf(format, safe...))
}
