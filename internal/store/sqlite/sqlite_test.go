package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cartchat.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.PutUser(context.Background(), &store.User{ID: "alice", Username: "alice", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version;").Scan(&version))
	assert.Equal(t, len(migrations), version)

	u, err := s.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}

func TestNewWithSetup(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO users (id, username, created_at) VALUES ('bob', 'bob', 0)`)
		return err
	})
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.ID)
}

func TestSenderMustDifferFromRecipient(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	now := time.Now()
	err = s.InsertMessage(context.Background(), &store.Message{
		ID: "m1", ConversationID: "alice_alice", Sender: "alice", Recipient: "alice",
		Content: "hi", Type: store.MessageText, CreatedAt: now, UpdatedAt: now,
	})
	assert.Error(t, err)
}
