package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/mcpwire/models"
)

func TestConnectCreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "transcript.db")

	db, err := Connect(dbPath, false)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}()

	session := &models.Session{ID: "ses-test", Peer: "server"}
	require.NoError(t, db.Create(session).Error)

	row, err := models.NewExchange(session.ID, "inbound", "tools/list", nil, map[string]any{"tools": []any{}})
	require.NoError(t, err)
	require.NoError(t, db.Create(row).Error)

	var count int64
	require.NoError(t, db.Model(&models.Exchange{}).Where("session_id = ?", session.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var loaded models.Exchange
	require.NoError(t, db.Where("session_id = ?", session.ID).First(&loaded).Error)
	assert.Equal(t, "tools/list", loaded.Method)
	assert.Equal(t, "inbound", loaded.Direction)
}

func TestConnectInMemory(t *testing.T) {
	db, err := Connect(":memory:", false)
	require.NoError(t, err)

	session := &models.Session{ID: "mem", Peer: "client"}
	require.NoError(t, db.Create(session).Error)

	var loaded models.Session
	require.NoError(t, db.First(&loaded, "id = ?", "mem").Error)
	assert.Equal(t, "client", loaded.Peer)
}

func TestRemoteDSN(t *testing.T) {
	assert.True(t, remoteDSN("libsql://example.turso.io"))
	assert.True(t, remoteDSN("https://example.turso.io"))
	assert.False(t, remoteDSN("./local.db"))
	assert.False(t, remoteDSN(":memory:"))
}
