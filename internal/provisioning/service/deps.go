package service

import (
	"context"
	"time"

	"github.com/datacharted/go-provisioning-backend/internal/accounts"
	"github.com/datacharted/go-provisioning-backend/internal/gcp"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
)

// CloudClient is the slice of the provider adapter the pipeline drives.
// *gcp.Client satisfies it; tests substitute fakes.
type CloudClient interface {
	GetFolder(ctx context.Context, name string) (*gcp.Folder, error)
	CreateFolder(ctx context.Context, displayName string) (*gcp.Folder, error)
	CreateProject(ctx context.Context, projectID, displayName, parentFolder string, labels map[string]string) (string, error)
	EnableServices(ctx context.Context, projectID string, services []string) error
	LinkBilling(ctx context.Context, projectID string) error
	CreateDataset(ctx context.Context, projectID, datasetID, location string) error
	CreateServiceAccount(ctx context.Context, projectID, accountID, displayName string) (string, error)
	GrantProjectViewer(ctx context.Context, projectID, member string) error
}

// AccountStore is the account directory as seen by the pipeline.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*accounts.Account, error)
	SetFolder(ctx context.Context, id, folderID, folderName string) error
	ClearFolder(ctx context.Context, id string) error
}

// RecordStore owns durable provisioning-record state. The orchestrator is the
// only caller of the status mutators.
type RecordStore interface {
	Create(ctx context.Context, params repository.CreateParams) (*domain.Project, error)
	ListForAccount(ctx context.Context, accountID string) ([]domain.Project, error)
	GetByProjectID(ctx context.Context, accountID, projectID string, includeDeleted bool) (*domain.Project, error)
	GetStatus(ctx context.Context, projectID string) (*domain.StatusReport, error)
	SetProjectNumber(ctx context.Context, id, number string) error
	SetServiceAccount(ctx context.Context, id, email string) error
	AddWarning(ctx context.Context, id string, w domain.StepWarning) error
	MarkActive(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
	SoftDelete(ctx context.Context, accountID, projectID string) (bool, error)
}

// Locker serializes critical sections across concurrent requests and
// processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Notifier delivers templated notifications. Send never fails the caller;
// delivery problems degrade to a logged warning.
type Notifier interface {
	Send(ctx context.Context, template, recipient string, vars map[string]string) bool
}
