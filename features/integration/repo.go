package integration

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("integration: not found")

type Repository interface {
	ListActive(ctx context.Context) ([]Integration, error)
	Get(ctx context.Context, id string) (*Integration, error)
	Update(ctx context.Context, id string, schedule string, isActive bool) error
	SetStatus(ctx context.Context, id string, status Status) error
	MarkScheduled(ctx context.Context, id string, status Status, at time.Time) error
	Delete(ctx context.Context, id string) error

	UpsertParentGroup(ctx context.Context, g *ParentGroup) error
	GetParentGroup(ctx context.Context, id string) (*ParentGroup, error)
	ListParentGroups(ctx context.Context, integrationID string) ([]ParentGroup, error)
	// TryEnqueue flips a parent group to queued iff it is not already queued
	// or running. Returns false when the flip lost, which makes repeated
	// scheduler ticks idempotent.
	TryEnqueue(ctx context.Context, parentGroupID string) (bool, error)
	// ClaimRunning performs the queued -> running compare-and-set that
	// guarantees at most one concurrent sync per parent group. The claim
	// carries a running_since lease timestamp.
	ClaimRunning(ctx context.Context, parentGroupID string) (bool, error)
	// ReclaimStale fails every running group whose lease started before
	// the cutoff, freeing groups wedged by a dead worker.
	ReclaimStale(ctx context.Context, olderThan time.Time) (int, error)
	UpdateCursor(ctx context.Context, parentGroupID, cursor string) error
	FinishSync(ctx context.Context, parentGroupID string, status Status, syncErr string, recordCount, nodeCount, edgeCount int) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListActive(ctx context.Context) ([]Integration, error) {
	query := `SELECT id, tenant_id, type, name, schedule, is_active, status, last_run, credential
		FROM integrations WHERE is_active = true ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var in Integration
		var lastRun sql.NullTime
		if err := rows.Scan(&in.ID, &in.TenantID, &in.Type, &in.Name, &in.Schedule, &in.IsActive, &in.Status, &lastRun, &in.Credential); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := lastRun.Time
			in.LastRun = &t
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Integration, error) {
	in := &Integration{}
	var lastRun sql.NullTime
	query := `SELECT id, tenant_id, type, name, schedule, is_active, status, last_run, credential
		FROM integrations WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&in.ID, &in.TenantID, &in.Type, &in.Name, &in.Schedule, &in.IsActive, &in.Status, &lastRun, &in.Credential)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		in.LastRun = &t
	}
	return in, nil
}

func (r *PostgresRepo) Update(ctx context.Context, id string, schedule string, isActive bool) error {
	query := `UPDATE integrations SET schedule = $2, is_active = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, schedule, isActive)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE integrations SET status = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

func (r *PostgresRepo) MarkScheduled(ctx context.Context, id string, status Status, at time.Time) error {
	query := `UPDATE integrations SET status = $2, last_run = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status, at)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM integrations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) UpsertParentGroup(ctx context.Context, g *ParentGroup) error {
	// New groups start not_started with an empty cursor; rediscovery of a
	// known group only refreshes its display name.
	query := `INSERT INTO parent_groups (id, integration_id, external_id, name, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (integration_id, external_id) DO UPDATE SET name = EXCLUDED.name`
	_, err := r.db.ExecContext(ctx, query, g.ID, g.IntegrationID, g.ExternalID, g.Name, StatusNotStarted)
	return err
}

func (r *PostgresRepo) GetParentGroup(ctx context.Context, id string) (*ParentGroup, error) {
	g := &ParentGroup{}
	var lastRun sql.NullTime
	var lastErr sql.NullString
	query := `SELECT id, integration_id, external_id, name, status, last_run, last_error, cursor, record_count, node_count, edge_count
		FROM parent_groups WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.IntegrationID, &g.ExternalID, &g.Name, &g.Status, &lastRun, &lastErr, &g.Cursor, &g.RecordCount, &g.NodeCount, &g.EdgeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := lastRun.Time
		g.LastRun = &t
	}
	if lastErr.Valid {
		g.LastError = lastErr.String
	}
	return g, nil
}

func (r *PostgresRepo) ListParentGroups(ctx context.Context, integrationID string) ([]ParentGroup, error) {
	query := `SELECT id, integration_id, external_id, name, status, last_run, last_error, cursor, record_count, node_count, edge_count
		FROM parent_groups WHERE integration_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ParentGroup
	for rows.Next() {
		var g ParentGroup
		var lastRun sql.NullTime
		var lastErr sql.NullString
		if err := rows.Scan(&g.ID, &g.IntegrationID, &g.ExternalID, &g.Name, &g.Status, &lastRun, &lastErr, &g.Cursor, &g.RecordCount, &g.NodeCount, &g.EdgeCount); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			t := lastRun.Time
			g.LastRun = &t
		}
		if lastErr.Valid {
			g.LastError = lastErr.String
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TryEnqueue(ctx context.Context, parentGroupID string) (bool, error) {
	query := `UPDATE parent_groups SET status = $2
		WHERE id = $1 AND status IN ($3, $4, $5)`
	res, err := r.db.ExecContext(ctx, query, parentGroupID, StatusQueued, StatusNotStarted, StatusSuccess, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ClaimRunning(ctx context.Context, parentGroupID string) (bool, error) {
	query := `UPDATE parent_groups SET status = $2, running_since = NOW() WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, parentGroupID, StatusRunning, StatusQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int, error) {
	// A running row with an expired lease belongs to a worker that died
	// mid-sync. Flipping it to failed puts it back on the enqueue path;
	// the committed cursor makes the rerun resume, not restart.
	query := `UPDATE parent_groups SET status = $1, last_error = 'sync lease expired'
		WHERE status = $2 AND running_since < $3`
	res, err := r.db.ExecContext(ctx, query, StatusFailed, StatusRunning, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *PostgresRepo) UpdateCursor(ctx context.Context, parentGroupID, cursor string) error {
	query := `UPDATE parent_groups SET cursor = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, parentGroupID, cursor)
	return err
}

func (r *PostgresRepo) FinishSync(ctx context.Context, parentGroupID string, status Status, syncErr string, recordCount, nodeCount, edgeCount int) error {
	query := `UPDATE parent_groups
		SET status = $2, last_error = $3, last_run = NOW(), record_count = $4, node_count = $5, edge_count = $6
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, parentGroupID, status, syncErr, recordCount, nodeCount, edgeCount)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
