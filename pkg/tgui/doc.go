// Package tgui holds small Telegram UI helpers: HTML escaping for
// ParseMode=HTML, "scope:action:payload" callback data and inline keyboards.
package tgui
