package service

import (
	"context"
	"fmt"
	"testing"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/database/dbtest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func deadlock() error {
	return fmt.Errorf("lock room 1: %w", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
}

func TestTransact_RunsDeadlockVictimsAgain(t *testing.T) {
	db := dbtest.Open(t)
	calls := 0

	ev, err := transact(context.Background(), db, func(tx *gorm.DB, ev *evictions) error {
		calls++
		ev.room(uint(calls))
		if calls == 1 {
			return deadlock()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []uint{2}, ev.rooms, "evictions of the aborted attempt are dropped")
}

func TestTransact_GivesUpAfterLastAttempt(t *testing.T) {
	db := dbtest.Open(t)
	calls := 0

	_, err := transact(context.Background(), db, func(tx *gorm.DB, ev *evictions) error {
		calls++
		return deadlock()
	})

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, txAttempts, calls)
}

func TestTransact_DoesNotRepeatOtherFailures(t *testing.T) {
	db := dbtest.Open(t)
	calls := 0

	_, err := transact(context.Background(), db, func(tx *gorm.DB, ev *evictions) error {
		calls++
		return apperror.BadRequest("The room is full")
	})

	require.ErrorIs(t, err, apperror.ErrBadRequest)
	assert.Equal(t, 1, calls)
}
