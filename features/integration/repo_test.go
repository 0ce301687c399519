package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"weft/features/integration"
)

func TestPostgresRepo_TryEnqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)

	t.Run("Idle", func(t *testing.T) {
		mock.ExpectExec("UPDATE parent_groups SET status").
			WithArgs("pg-1", integration.StatusQueued, integration.StatusNotStarted, integration.StatusSuccess, integration.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.TryEnqueue(context.Background(), "pg-1")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AlreadyInFlight", func(t *testing.T) {
		// Status is queued or running, so the conditional update matches nothing.
		mock.ExpectExec("UPDATE parent_groups SET status").
			WithArgs("pg-1", integration.StatusQueued, integration.StatusNotStarted, integration.StatusSuccess, integration.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.TryEnqueue(context.Background(), "pg-1")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ClaimRunning(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)

	t.Run("WinsClaim", func(t *testing.T) {
		// The claim stamps its lease start alongside the status flip.
		mock.ExpectExec("UPDATE parent_groups SET status = (.+), running_since = NOW").
			WithArgs("pg-1", integration.StatusRunning, integration.StatusQueued).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.ClaimRunning(context.Background(), "pg-1")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("LosesClaim", func(t *testing.T) {
		mock.ExpectExec("UPDATE parent_groups SET status").
			WithArgs("pg-1", integration.StatusRunning, integration.StatusQueued).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.ClaimRunning(context.Background(), "pg-1")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ReclaimStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)
	cutoff := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE parent_groups SET status = (.+), last_error = 'sync lease expired'").
		WithArgs(integration.StatusFailed, integration.StatusRunning, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ReclaimStale(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateCursor(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)

	mock.ExpectExec("UPDATE parent_groups SET cursor").
		WithArgs("pg-1", "1700000000.000100").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.UpdateCursor(context.Background(), "pg-1", "1700000000.000100"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FinishSync(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)

	mock.ExpectExec("UPDATE parent_groups").
		WithArgs("pg-1", integration.StatusSuccess, "", 250, 40, 60).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.FinishSync(context.Background(), "pg-1", integration.StatusSuccess, "", 250, 40, 60)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetParentGroup(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := integration.NewPostgresRepo(db)

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "integration_id", "external_id", "name", "status", "last_run", "last_error", "cursor", "record_count", "node_count", "edge_count"}).
			AddRow("pg-1", "in-1", "C024", "#general", "success", nil, nil, "17.0001", 10, 4, 6)
		mock.ExpectQuery("SELECT (.+) FROM parent_groups WHERE id").
			WithArgs("pg-1").
			WillReturnRows(rows)

		g, err := repo.GetParentGroup(context.Background(), "pg-1")
		assert.NoError(t, err)
		assert.Equal(t, "C024", g.ExternalID)
		assert.Equal(t, "17.0001", g.Cursor)
		assert.Nil(t, g.LastRun)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM parent_groups WHERE id").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetParentGroup(context.Background(), "missing")
		assert.ErrorIs(t, err, integration.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
