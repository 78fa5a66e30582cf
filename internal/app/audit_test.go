package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingkeeper/internal/storage"
	logx "pingkeeper/pkg/logx"
)

func TestPrintAudit(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "pk")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  driver: file\n  path: "+prefix+"\n"), 0o600))

	st, err := storage.Open(storage.Config{Driver: "file", Path: prefix}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendAudit(ctx, storage.AuditEntry{At: at, ActorID: 42, OwnerID: 42, Action: storage.ActionStart, Target: "https://x.test", OK: true}))
	require.NoError(t, st.AppendAudit(ctx, storage.AuditEntry{At: at.Add(time.Minute), ActorID: 7, Username: "mallory", OwnerID: 42, Action: storage.ActionDenied}))
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	require.NoError(t, PrintAudit(ctx, cfgPath, 10, &buf))
	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "ACTION")
	assert.Contains(t, out, "https://x.test")
	assert.Contains(t, out, "7 (@mallory)")
	// newest first
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("stop.denied")), bytes.Index(buf.Bytes(), []byte("https://x.test")))
}

func TestPrintAuditDisabled(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{}`), 0o600))
	err := PrintAudit(context.Background(), cfgPath, 10, &bytes.Buffer{})
	assert.ErrorContains(t, err, "storage is disabled")
}
