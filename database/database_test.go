package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	db, err := Open("sqlite:file:migrate_test?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"users", "sessions", "artworks", "orders"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("orders", "idx_orders_transaction_ref"))
}

func TestWithTimeout(t *testing.T) {
	db, err := Open("sqlite:file:timeout_test?mode=memory&cache=shared")
	require.NoError(t, err)

	bounded, cancel := WithTimeout(context.Background(), db, time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	assert.True(t, errors.Is(bounded.Statement.Context.Err(), context.DeadlineExceeded))

	unbounded, cancel := WithTimeout(context.Background(), db, 0)
	defer cancel()
	assert.NoError(t, unbounded.Statement.Context.Err())
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%storm%", LikePattern("  Storm "))
	assert.Equal(t, `%50\%\_off%`, LikePattern("50%_OFF"))
}
