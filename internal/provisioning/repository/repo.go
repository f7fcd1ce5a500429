package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
)

// Repo persists provisioning records. It is the only component that commits
// record state to the database; every mutation is a single statement, so a
// concurrent reader never sees a half-written record.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// CreateParams carries everything needed to open a provisioning record in
// status creating. The project ID itself is generated here so it exists
// before any Google Cloud call is issued.
type CreateParams struct {
	AccountID        string
	ContactDomain    string
	ProjectName      string
	BillingAccountID string
	Location         string
}

const projectCols = `
id::text, account_id::text, project_id, project_name,
coalesce(project_number,''), default_dataset, location,
coalesce(billing_account_id,''), coalesce(service_account_email,''),
status, coalesce(error_message,''), warnings, created_at, updated_at, deleted_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p        domain.Project
		warnings []byte
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.ProjectID, &p.ProjectName,
		&p.ProjectNumber, &p.DefaultDataset, &p.Location,
		&p.BillingAccountID, &p.ServiceAccountEmail,
		&p.Status, &p.ErrorMessage, &warnings, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &p.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return &p, nil
}

// Create inserts a new record in status creating with a freshly generated
// project identifier, retrying on the rare suffix collision.
func (r *Repo) Create(ctx context.Context, params CreateParams) (*domain.Project, error) {
	if params.ProjectName == "" {
		return nil, domain.ErrInvalidName
	}
	if params.AccountID == "" {
		return nil, fmt.Errorf("account id required")
	}

	for i := 0; i < 5; i++ {
		projectID := domain.NewProjectID(params.ContactDomain, params.ProjectName)

		q := `
insert into projects (account_id, project_id, project_name, default_dataset, location, billing_account_id, status)
values ($1::uuid, $2, $3, $4, $5, nullif($6,''), $7)
returning ` + projectCols + `;
`
		p, err := scanProject(r.db.QueryRow(ctx, q,
			params.AccountID, projectID, params.ProjectName,
			domain.DefaultDatasetID, params.Location, params.BillingAccountID,
			domain.StatusCreating,
		))
		if err == nil {
			return p, nil
		}

		// unique violation on project_id → retry with a new suffix
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to generate unique project id")
}

// ListForAccount returns all non-deleted records owned by the account.
func (r *Repo) ListForAccount(ctx context.Context, accountID string) ([]domain.Project, error) {
	q := `
select ` + projectCols + `
from projects
where account_id = $1::uuid and deleted_at is null
order by created_at desc;
`
	rows, err := r.db.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetByProjectID fetches one record owned by the account. Soft-deleted rows
// are excluded unless includeDeleted is set.
func (r *Repo) GetByProjectID(ctx context.Context, accountID, projectID string, includeDeleted bool) (*domain.Project, error) {
	q := `
select ` + projectCols + `
from projects
where account_id = $1::uuid and project_id = $2`
	if !includeDeleted {
		q += ` and deleted_at is null`
	}
	q += `;`
	return scanProject(r.db.QueryRow(ctx, q, accountID, projectID))
}

// GetStatus returns the polling view for a project identifier regardless of
// owning account.
func (r *Repo) GetStatus(ctx context.Context, projectID string) (*domain.StatusReport, error) {
	const q = `
select status, coalesce(error_message,''), created_at, updated_at
from projects
where project_id = $1;
`
	var rep domain.StatusReport
	err := r.db.QueryRow(ctx, q, projectID).Scan(&rep.Status, &rep.ErrorMessage, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rep, nil
}

// SetProjectNumber records the provider-assigned numeric identifier once
// project creation has succeeded.
func (r *Repo) SetProjectNumber(ctx context.Context, id, number string) error {
	const q = `update projects set project_number = $2, updated_at = now() where id = $1::uuid;`
	return r.exec(ctx, q, id, number)
}

// SetServiceAccount records the integration service-account email.
func (r *Repo) SetServiceAccount(ctx context.Context, id, email string) error {
	const q = `update projects set service_account_email = $2, updated_at = now() where id = $1::uuid;`
	return r.exec(ctx, q, id, email)
}

// AddWarning appends a best-effort step failure to the record.
func (r *Repo) AddWarning(ctx context.Context, id string, w domain.StepWarning) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	const q = `
update projects
set warnings = warnings || $2::jsonb, updated_at = now()
where id = $1::uuid;
`
	return r.exec(ctx, q, id, data)
}

// MarkActive finalizes a successful attempt. The status predicate makes the
// creating → active transition a compare-and-swap.
func (r *Repo) MarkActive(ctx context.Context, id string) error {
	const q = `
update projects
set status = $2, error_message = null, updated_at = now()
where id = $1::uuid and status = $3;
`
	ct, err := r.db.Exec(ctx, q, id, domain.StatusActive, domain.StatusCreating)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// MarkError records a fatal pipeline failure with its diagnostic.
func (r *Repo) MarkError(ctx context.Context, id, message string) error {
	const q = `
update projects
set status = $2, error_message = $3, updated_at = now()
where id = $1::uuid and status = $4;
`
	ct, err := r.db.Exec(ctx, q, id, domain.StatusError, message, domain.StatusCreating)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// SoftDelete marks the record deleted without touching the backing Google
// Cloud project. Live cloud resources are never torn down automatically.
func (r *Repo) SoftDelete(ctx context.Context, accountID, projectID string) (bool, error) {
	const q = `
update projects
set deleted_at = now(), status = $3, updated_at = now()
where account_id = $1::uuid and project_id = $2 and deleted_at is null;
`
	ct, err := r.db.Exec(ctx, q, accountID, projectID, domain.StatusDeleted)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ExpireStuckCreating flips records that have sat in creating longer than
// maxAge into error. Used by the reaper cron job.
func (r *Repo) ExpireStuckCreating(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `
update projects
set status = $1, error_message = 'provisioning timed out', updated_at = now()
where status = $2 and deleted_at is null and updated_at < now() - $3::interval;
`
	interval := fmt.Sprintf("%d seconds", int64(maxAge.Seconds()))
	ct, err := r.db.Exec(ctx, q, domain.StatusError, domain.StatusCreating, interval)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *Repo) exec(ctx context.Context, q string, args ...any) error {
	ct, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
