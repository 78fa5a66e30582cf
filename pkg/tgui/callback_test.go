package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	d, err := Data("ka", "stop", "42")
	require.NoError(t, err)
	assert.Equal(t, "ka:stop:42", d)

	scope, action, payload, err := ParseData(d)
	require.NoError(t, err)
	assert.Equal(t, "ka", scope)
	assert.Equal(t, "stop", action)
	assert.Equal(t, "42", payload)
}

func TestDataTooLong(t *testing.T) {
	_, err := Data("ka", "stop", strings.Repeat("9", 70))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)
}

func TestParseDataRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "stop", ":stop", "ka:"} {
		_, _, _, err := ParseData(in)
		assert.ErrorIs(t, err, ErrCallbackDataInvalid, in)
	}
}

func TestFEscapesPlainArgs(t *testing.T) {
	got := F("%s %s", B("x"), "<script>")
	assert.Equal(t, H("<b>x</b> &lt;script&gt;"), got)
}

func TestKeyboard(t *testing.T) {
	assert.Nil(t, Keyboard())
	assert.Nil(t, Keyboard(nil, []Button{}))

	rm := Keyboard([]Button{{Text: "⏹ Stop", Data: "ka:stop:42"}}, nil)
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 1)
	require.Len(t, rm.InlineKeyboard[0], 1)
	assert.Equal(t, "ka:stop:42", rm.InlineKeyboard[0][0].Data)
	assert.Equal(t, "⏹ Stop", rm.InlineKeyboard[0][0].Text)
}
