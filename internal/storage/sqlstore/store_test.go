package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

func openSQLite(t *testing.T) *Store {
	s, err := Open(context.Background(), Config{Dialect: SQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(clientID string, calls int64) *quota.Record {
	return &quota.Record{
		HashKey:  "orders:POST",
		ClientID: clientID,
		Windows: map[quota.Period]*quota.WindowState{
			quota.Hour: {LastUpdated: 10, MaxAllowedRate: 0.0002, ObservedRate: 0.0001, LastUpdatedBurst: 5, MaxAllowedCallsInPeriod: 720, CallsInPeriod: calls},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Dialect: SQLite, DSN: "q.db"}).Validate())
	assert.Error(t, (&Config{Dialect: "mysql", DSN: "x"}).Validate())
	assert.Error(t, (&Config{Dialect: Postgres}).Validate())
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	lite := &Store{dialect: SQLite}

	assert.Equal(t, "SELECT payload FROM quota_records WHERE hash_key = $1 AND client_id = $2", pg.rebind(selectRecord))
	assert.Equal(t, selectRecord, lite.rebind(selectRecord))
}

func TestStore_GetPutUpsert(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	_, err := s.Get(ctx, "orders:POST", "acme")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Put(ctx, record("acme", 1)))
	require.NoError(t, s.Put(ctx, record("acme", 4)))

	got, err := s.Get(ctx, "orders:POST", "acme")
	require.NoError(t, err)
	assert.Equal(t, record("acme", 4), got)
	assert.NoError(t, s.Health(ctx))
}

func TestStore_PutBatch(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	require.NoError(t, s.PutBatch(ctx, []*quota.Record{record("a", 1), record("b", 2), record("a", 3)}))

	a, err := s.Get(ctx, "orders:POST", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Windows[quota.Hour].CallsInPeriod)

	b, err := s.Get(ctx, "orders:POST", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Windows[quota.Hour].CallsInPeriod)
}

func TestStore_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quotas.db")

	s, err := Open(ctx, Config{Dialect: SQLite, DSN: path})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, record("acme", 2)))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, Config{Dialect: SQLite, DSN: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "orders:POST", "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Windows[quota.Hour].CallsInPeriod)
}
