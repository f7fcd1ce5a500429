package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
)

// requiredServices are the APIs every managed project needs. Enablement is
// best-effort: a partial failure becomes a warning on the record, not a
// pipeline abort, because each API can be re-enabled independently later.
var requiredServices = []string{
	"bigquery.googleapis.com",
	"bigquerystorage.googleapis.com",
	"iam.googleapis.com",
	"cloudresourcemanager.googleapis.com",
}

var projectLabels = map[string]string{
	"created-by":  "datacharted",
	"environment": "managed",
	"service":     "bigquery",
}

const (
	serviceAccountID  = "datacharted-airbyte"
	maxProjectNameLen = 64
)

// Orchestrator drives the provisioning pipeline: folder allocation, project
// creation, API enablement, billing linkage, dataset creation, service
// identity, access grant, status finalize. It is the single boundary that
// converts step failures into persisted terminal record state.
type Orchestrator struct {
	cloud    CloudClient
	accounts AccountStore
	records  RecordStore
	folders  *FolderAllocator
	notifier Notifier

	billingAccountID string
	datasetLocation  string
}

func NewOrchestrator(cloud CloudClient, accountStore AccountStore, recordStore RecordStore, folders *FolderAllocator, notifier Notifier, billingAccountID, datasetLocation string) *Orchestrator {
	return &Orchestrator{
		cloud:            cloud,
		accounts:         accountStore,
		records:          recordStore,
		folders:          folders,
		notifier:         notifier,
		billingAccountID: billingAccountID,
		datasetLocation:  datasetLocation,
	}
}

// Provision creates a managed BigQuery project for the account, blocking
// until the record reaches a terminal status. The record is persisted in
// status creating before the first Google Cloud project call, so a failed
// attempt is still addressable by its project ID. Active and error are
// terminal: retrying means a new Provision call and a new record.
//
// Cancellation is honored up to project creation. Once the external project
// exists the remaining steps run detached from the caller's context so the
// record always reaches a terminal status.
func (o *Orchestrator) Provision(ctx context.Context, accountID, projectName, folderName string) (*domain.Project, error) {
	rec, acct, folderRef, err := o.begin(ctx, accountID, projectName, folderName)
	if err != nil {
		return rec, err
	}
	return rec, o.finish(ctx, rec, acct, folderRef)
}

// ProvisionAsync runs steps 1-2 synchronously and the provider-facing steps
// in the background, returning the record in status creating for the caller
// to poll. Failures before the record exists are reported directly.
func (o *Orchestrator) ProvisionAsync(ctx context.Context, accountID, projectName, folderName string) (*domain.Project, error) {
	rec, acct, folderRef, err := o.begin(ctx, accountID, projectName, folderName)
	if err != nil {
		return rec, err
	}

	snapshot := *rec
	go func() {
		_ = o.finish(context.WithoutCancel(ctx), rec, acct, folderRef)
	}()
	return &snapshot, nil
}

// begin validates input, allocates the account folder and opens the record
// (pipeline steps 1-2).
func (o *Orchestrator) begin(ctx context.Context, accountID, projectName, folderName string) (*domain.Project, *accountSnapshot, string, error) {
	lg := NewLogger(ctx)

	projectName = strings.TrimSpace(projectName)
	if projectName == "" || len(projectName) > maxProjectNameLen {
		return nil, nil, "", domain.ErrInvalidName
	}

	acct, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load account: %w", err)
	}

	// Step 1: resolve or create the account's folder.
	folderRef, err := o.folders.EnsureFolder(ctx, acct, folderName)
	if err != nil {
		return nil, nil, "", fmt.Errorf("ensure folder: %w", err)
	}

	// Step 2: persist the record before any project-level provider call.
	rec, err := o.records.Create(ctx, repository.CreateParams{
		AccountID:        acct.ID,
		ContactDomain:    acct.ContactDomain(),
		ProjectName:      projectName,
		BillingAccountID: o.billingAccountID,
		Location:         o.datasetLocation,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("create provisioning record: %w", err)
	}

	lg.LogInfof("provision", "starting project creation for account %s: %s", acct.ID, rec.ProjectID)
	return rec, &accountSnapshot{id: acct.ID, email: acct.Email}, folderRef, nil
}

type accountSnapshot struct {
	id    string
	email string
}

// finish drives steps 3-9 and finalizes the record.
func (o *Orchestrator) finish(ctx context.Context, rec *domain.Project, acct *accountSnapshot, folderRef string) error {
	lg := NewLogger(ctx)

	// Last cancellation point before an external resource exists.
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("cancelled before project creation: %w", err))
	}

	// Step 3: create the cloud project (fatal on failure).
	number, err := o.cloud.CreateProject(ctx, rec.ProjectID, "DataCharted - "+rec.ProjectName, folderRef, projectLabels)
	if err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("create project: %w", err))
	}

	// The external project now exists: detach from the caller so a client
	// disconnect cannot leave it half-configured.
	ctx = context.WithoutCancel(ctx)

	if err := o.records.SetProjectNumber(ctx, rec.ID, number); err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("record project number: %w", err))
	}
	rec.ProjectNumber = number

	// Step 4: enable required APIs (best effort).
	if err := o.cloud.EnableServices(ctx, rec.ProjectID, requiredServices); err != nil {
		o.warn(ctx, lg, rec, "enable_apis", err)
	}

	// Step 5: link billing (best effort).
	if err := o.cloud.LinkBilling(ctx, rec.ProjectID); err != nil {
		o.warn(ctx, lg, rec, "billing_link", err)
	}

	// Step 6: create the default dataset; already-exists counts as success.
	if err := o.cloud.CreateDataset(ctx, rec.ProjectID, rec.DefaultDataset, o.datasetLocation); err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("create dataset: %w", err))
	}

	// Step 7: service identity for downstream integrations.
	saEmail, err := o.cloud.CreateServiceAccount(ctx, rec.ProjectID, serviceAccountID, "DataCharted integration")
	if err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("create service account: %w", err))
	}
	if err := o.records.SetServiceAccount(ctx, rec.ID, saEmail); err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("record service account: %w", err))
	}
	rec.ServiceAccountEmail = saEmail

	// Step 8: grant the requesting identity read access.
	if acct.email != "" {
		if err := o.cloud.GrantProjectViewer(ctx, rec.ProjectID, "user:"+acct.email); err != nil {
			return o.fail(ctx, rec, acct.email, fmt.Errorf("grant viewer access: %w", err))
		}
	} else {
		o.warn(ctx, lg, rec, "viewer_grant", fmt.Errorf("account %s has no email, skipping viewer grant", acct.id))
	}

	// Step 9: finalize.
	if err := o.records.MarkActive(ctx, rec.ID); err != nil {
		return o.fail(ctx, rec, acct.email, fmt.Errorf("mark active: %w", err))
	}
	rec.Status = domain.StatusActive
	rec.UpdatedAt = time.Now().UTC()

	lg.LogInfof("provision", "successfully created project %s", rec.ProjectID)
	o.notify(ctx, lg, "project_ready", acct.email, rec)

	return nil
}

// ListProjects returns the account's non-deleted records.
func (o *Orchestrator) ListProjects(ctx context.Context, accountID string) ([]domain.Project, error) {
	return o.records.ListForAccount(ctx, accountID)
}

// GetProject fetches one record owned by the account.
func (o *Orchestrator) GetProject(ctx context.Context, accountID, projectID string, includeDeleted bool) (*domain.Project, error) {
	return o.records.GetByProjectID(ctx, accountID, projectID, includeDeleted)
}

// DeleteProject soft-deletes the record. The backing cloud project is left
// untouched; tearing down live resources is never automatic.
func (o *Orchestrator) DeleteProject(ctx context.Context, accountID, projectID string) (bool, error) {
	ok, err := o.records.SoftDelete(ctx, accountID, projectID)
	if err == nil && ok {
		NewLogger(ctx).LogInfof("delete_project", "soft deleted project %s", projectID)
	}
	return ok, err
}

// fail records the terminal error state and reports the failure. It always
// runs detached from caller cancellation so the record is never stranded in
// creating.
func (o *Orchestrator) fail(ctx context.Context, rec *domain.Project, recipient string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	lg := NewLogger(ctx)
	lg.LogError("provision", cause)

	if err := o.records.MarkError(ctx, rec.ID, cause.Error()); err != nil {
		lg.LogError("provision", fmt.Errorf("mark error for %s: %w", rec.ProjectID, err))
	} else {
		rec.Status = domain.StatusError
		rec.ErrorMessage = cause.Error()
	}

	o.notify(ctx, lg, "project_failed", recipient, rec)
	return cause
}

// warn persists a best-effort step failure on the record and keeps going.
func (o *Orchestrator) warn(ctx context.Context, lg *Logger, rec *domain.Project, step string, cause error) {
	lg.LogWarnf("provision", "step %s failed for %s: %v", step, rec.ProjectID, cause)

	w := domain.StepWarning{Step: step, Message: cause.Error(), At: time.Now().UTC()}
	if err := o.records.AddWarning(ctx, rec.ID, w); err != nil {
		lg.LogError("provision", fmt.Errorf("record warning for %s: %w", rec.ProjectID, err))
		return
	}
	rec.Warnings = append(rec.Warnings, w)
}

func (o *Orchestrator) notify(ctx context.Context, lg *Logger, template, recipient string, rec *domain.Project) {
	if o.notifier == nil || recipient == "" {
		return
	}
	vars := map[string]string{
		"project_id":   rec.ProjectID,
		"project_name": rec.ProjectName,
		"status":       string(rec.Status),
	}
	if rec.ErrorMessage != "" {
		vars["error_message"] = rec.ErrorMessage
	}
	if !o.notifier.Send(ctx, template, recipient, vars) {
		lg.LogWarnf("provision", "notification %s to %s not delivered", template, recipient)
	}
}
