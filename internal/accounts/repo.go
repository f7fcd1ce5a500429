package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("account not found")

// Account is a registered user of the platform. FolderID/FolderName reference
// the account's backing organization folder and are set lazily by the folder
// allocator, at most once per successful folder creation.
type Account struct {
	ID          string    `json:"id"`
	FirebaseUID string    `json:"-"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	FolderID    string    `json:"gcp_folder_id,omitempty"`
	FolderName  string    `json:"gcp_folder_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContactDomain returns the domain part of the account's email, or "" when
// the email is absent or malformed.
func (a *Account) ContactDomain() string {
	_, dom, ok := strings.Cut(a.Email, "@")
	if !ok {
		return ""
	}
	return dom
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type UpsertAccount struct {
	FirebaseUID string
	Email       string
	DisplayName string
}

const accountCols = `id::text, firebase_uid, coalesce(email,''), coalesce(display_name,''), coalesce(gcp_folder_id,''), coalesce(gcp_folder_name,''), created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.FirebaseUID, &a.Email, &a.DisplayName, &a.FolderID, &a.FolderName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// EnsureAccount upserts the account row keyed by firebase uid and returns it.
func (r *Repo) EnsureAccount(ctx context.Context, u UpsertAccount) (*Account, error) {
	if u.FirebaseUID == "" {
		return nil, fmt.Errorf("firebase_uid required")
	}

	q := `
insert into accounts (firebase_uid, email, display_name, updated_at)
values ($1, nullif($2,''), nullif($3,''), now())
on conflict (firebase_uid) do update
set
  email = coalesce(excluded.email, accounts.email),
  display_name = coalesce(excluded.display_name, accounts.display_name),
  updated_at = now()
returning ` + accountCols + `;
`
	return scanAccount(r.db.QueryRow(ctx, q, u.FirebaseUID, u.Email, u.DisplayName))
}

// GetByID fetches an account by its internal id.
func (r *Repo) GetByID(ctx context.Context, id string) (*Account, error) {
	q := `select ` + accountCols + ` from accounts where id = $1::uuid;`
	return scanAccount(r.db.QueryRow(ctx, q, id))
}

// SetFolder persists the backing folder reference onto the account.
func (r *Repo) SetFolder(ctx context.Context, id, folderID, folderName string) error {
	const q = `
update accounts
set gcp_folder_id = $2, gcp_folder_name = $3, updated_at = now()
where id = $1::uuid;
`
	ct, err := r.db.Exec(ctx, q, id, folderID, folderName)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearFolder drops a stale folder reference so the allocator can recreate it.
func (r *Repo) ClearFolder(ctx context.Context, id string) error {
	const q = `
update accounts
set gcp_folder_id = null, gcp_folder_name = null, updated_at = now()
where id = $1::uuid;
`
	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
