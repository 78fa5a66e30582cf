package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pingkeeper/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	assert.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Driver: "none"}, logx.Nop())
	assert.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestStoresRecordActions(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []Config{
		{Driver: "sqlite", Path: filepath.Join(dir, "audit.db")},
		{Driver: "file", Path: filepath.Join(dir, "audit.json")},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			require.NotNil(t, st)
			defer st.Close()

			require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 42, OwnerID: 42, Action: ActionStart, Target: "https://x.test", OK: true}))
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 7, OwnerID: 42, Action: ActionDenied, Detail: "not owner"}))
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 42, OwnerID: 42, Action: ActionStop, Target: "https://x.test", OK: true}))

			got, err := st.RecentAudit(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, ActionStop, got[0].Action)
			assert.True(t, got[0].OK)
			assert.Equal(t, ActionDenied, got[1].Action)
			assert.Equal(t, int64(7), got[1].ActorID)
			assert.Equal(t, int64(42), got[1].OwnerID)
			assert.False(t, got[1].At.IsZero())
		})
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)
}
