package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datacharted/go-provisioning-backend/internal/accounts"
	"github.com/datacharted/go-provisioning-backend/internal/gcp"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
)

// fakeCloud is an in-memory CloudClient. Failure toggles make individual
// pipeline steps fail; call slices record what the pipeline asked for.
type fakeCloud struct {
	mu sync.Mutex

	folders           map[string]*gcp.Folder
	folderSeq         int
	createFolderDelay time.Duration

	failCreateProject  bool
	failEnableServices bool
	failLinkBilling    bool
	failCreateDataset  bool
	failGrantViewer    bool

	// onCreateProject runs before CreateProject succeeds or fails, outside
	// the fake's lock.
	onCreateProject func(projectID string)

	createFolderCalls int
	createdProjects   []string
	enabledServices   map[string][]string
	linkedBilling     []string
	createdDatasets   []string
	createdSAs        []string
	viewerGrants      map[string][]string
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		folders:         map[string]*gcp.Folder{},
		enabledServices: map[string][]string{},
		viewerGrants:    map[string][]string{},
	}
}

func (f *fakeCloud) GetFolder(ctx context.Context, name string) (*gcp.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	folder, ok := f.folders[name]
	if !ok {
		return nil, fmt.Errorf("get folder %s: %w", name, gcp.ErrNotFound)
	}
	cp := *folder
	return &cp, nil
}

func (f *fakeCloud) CreateFolder(ctx context.Context, displayName string) (*gcp.Folder, error) {
	if f.createFolderDelay > 0 {
		time.Sleep(f.createFolderDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFolderCalls++
	f.folderSeq++
	folder := &gcp.Folder{
		Name:        fmt.Sprintf("folders/%d", 1000+f.folderSeq),
		DisplayName: displayName,
	}
	f.folders[folder.Name] = folder
	cp := *folder
	return &cp, nil
}

func (f *fakeCloud) CreateProject(ctx context.Context, projectID, displayName, parentFolder string, labels map[string]string) (string, error) {
	if f.onCreateProject != nil {
		f.onCreateProject(projectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateProject {
		return "", errors.New("project quota exceeded")
	}
	f.createdProjects = append(f.createdProjects, projectID)
	return "987654321", nil
}

func (f *fakeCloud) EnableServices(ctx context.Context, projectID string, services []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnableServices {
		return errors.New("serviceusage unavailable")
	}
	f.enabledServices[projectID] = append([]string(nil), services...)
	return nil
}

func (f *fakeCloud) LinkBilling(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLinkBilling {
		return errors.New("billing account not open")
	}
	f.linkedBilling = append(f.linkedBilling, projectID)
	return nil
}

func (f *fakeCloud) CreateDataset(ctx context.Context, projectID, datasetID, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateDataset {
		return errors.New("dataset location invalid")
	}
	f.createdDatasets = append(f.createdDatasets, projectID+"."+datasetID)
	return nil
}

func (f *fakeCloud) CreateServiceAccount(ctx context.Context, projectID, accountID, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, projectID)
	f.createdSAs = append(f.createdSAs, email)
	return email, nil
}

func (f *fakeCloud) GrantProjectViewer(ctx context.Context, projectID, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGrantViewer {
		return errors.New("iam policy frozen")
	}
	f.viewerGrants[projectID] = append(f.viewerGrants[projectID], member)
	return nil
}

// fakeAccounts is an in-memory AccountStore. GetByID returns copies so the
// allocator's re-read-under-lock sees stored state, not shared pointers.
type fakeAccounts struct {
	mu   sync.Mutex
	byID map[string]*accounts.Account

	clearFolderCalls int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]*accounts.Account{}}
}

func (f *fakeAccounts) put(a *accounts.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.byID[a.ID] = &cp
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) SetFolder(ctx context.Context, id, folderID, folderName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return accounts.ErrNotFound
	}
	a.FolderID = folderID
	a.FolderName = folderName
	return nil
}

func (f *fakeAccounts) ClearFolder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return accounts.ErrNotFound
	}
	f.clearFolderCalls++
	a.FolderID = ""
	a.FolderName = ""
	return nil
}

// fakeRecords is an in-memory RecordStore with the same compare-and-set
// semantics as the SQL repository: status mutators only apply to records
// still in creating.
type fakeRecords struct {
	mu   sync.Mutex
	byID map[string]*domain.Project
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: map[string]*domain.Project{}}
}

func (f *fakeRecords) Create(ctx context.Context, p repository.CreateParams) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	rec := &domain.Project{
		ID:               uuid.NewString(),
		AccountID:        p.AccountID,
		ProjectID:        domain.NewProjectID(p.ContactDomain, p.ProjectName),
		ProjectName:      p.ProjectName,
		DefaultDataset:   domain.DefaultDatasetID,
		Location:         p.Location,
		BillingAccountID: p.BillingAccountID,
		Status:           domain.StatusCreating,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.byID[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) ListForAccount(ctx context.Context, accountID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, rec := range f.byID {
		if rec.AccountID == accountID && rec.DeletedAt == nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeRecords) GetByProjectID(ctx context.Context, accountID, projectID string, includeDeleted bool) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		if rec.AccountID != accountID || rec.ProjectID != projectID {
			continue
		}
		if rec.DeletedAt != nil && !includeDeleted {
			break
		}
		cp := *rec
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecords) GetStatus(ctx context.Context, projectID string) (*domain.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		if rec.ProjectID == projectID {
			return &domain.StatusReport{
				Status:       rec.Status,
				ErrorMessage: rec.ErrorMessage,
				CreatedAt:    rec.CreatedAt,
				UpdatedAt:    rec.UpdatedAt,
			}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecords) SetProjectNumber(ctx context.Context, id, number string) error {
	return f.update(id, func(rec *domain.Project) error {
		rec.ProjectNumber = number
		return nil
	})
}

func (f *fakeRecords) SetServiceAccount(ctx context.Context, id, email string) error {
	return f.update(id, func(rec *domain.Project) error {
		rec.ServiceAccountEmail = email
		return nil
	})
}

func (f *fakeRecords) AddWarning(ctx context.Context, id string, w domain.StepWarning) error {
	return f.update(id, func(rec *domain.Project) error {
		rec.Warnings = append(rec.Warnings, w)
		return nil
	})
}

func (f *fakeRecords) MarkActive(ctx context.Context, id string) error {
	return f.update(id, func(rec *domain.Project) error {
		if rec.Status != domain.StatusCreating {
			return domain.ErrInvalidTransition
		}
		rec.Status = domain.StatusActive
		return nil
	})
}

func (f *fakeRecords) MarkError(ctx context.Context, id, message string) error {
	return f.update(id, func(rec *domain.Project) error {
		if rec.Status != domain.StatusCreating {
			return domain.ErrInvalidTransition
		}
		rec.Status = domain.StatusError
		rec.ErrorMessage = message
		return nil
	})
}

func (f *fakeRecords) SoftDelete(ctx context.Context, accountID, projectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		if rec.AccountID == accountID && rec.ProjectID == projectID && rec.DeletedAt == nil {
			now := time.Now().UTC()
			rec.DeletedAt = &now
			rec.Status = domain.StatusDeleted
			rec.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) update(id string, fn func(*domain.Project) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := fn(rec); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// stored returns a copy of the single record in the store; the orchestrator
// tests always provision exactly one project.
func (f *fakeRecords) stored() (domain.Project, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		return *rec, true
	}
	return domain.Project{}, false
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// fakeLocker serializes per key with process-local mutexes, enough for
// single-process tests that do not exercise the redis lock itself.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: map[string]*sync.Mutex{}}
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type sentNotification struct {
	Template  string
	Recipient string
	Vars      map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Send(ctx context.Context, template, recipient string, vars map[string]string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Template: template, Recipient: recipient, Vars: vars})
	return true
}

func (n *fakeNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

type testEnv struct {
	cloud    *fakeCloud
	accounts *fakeAccounts
	records  *fakeRecords
	notifier *fakeNotifier
	folders  *FolderAllocator
	orc      *Orchestrator
}

func newTestEnv() *testEnv {
	cloud := newFakeCloud()
	accts := newFakeAccounts()
	records := newFakeRecords()
	notifier := &fakeNotifier{}
	folders := NewFolderAllocator(cloud, accts, newFakeLocker())
	return &testEnv{
		cloud:    cloud,
		accounts: accts,
		records:  records,
		notifier: notifier,
		folders:  folders,
		orc:      NewOrchestrator(cloud, accts, records, folders, notifier, "01AB23-CD45EF", "EU"),
	}
}

// seedAccount registers an account; withFolder pre-allocates a resolvable
// folder so provisioning skips folder creation.
func (e *testEnv) seedAccount(id, email string, withFolder bool) *accounts.Account {
	a := &accounts.Account{
		ID:          id,
		FirebaseUID: "uid-" + id,
		Email:       email,
		DisplayName: "Test User",
	}
	if withFolder {
		folder := &gcp.Folder{Name: "folders/500", DisplayName: "seeded"}
		e.cloud.mu.Lock()
		e.cloud.folders[folder.Name] = folder
		e.cloud.mu.Unlock()
		a.FolderID = folder.Name
		a.FolderName = folder.DisplayName
	}
	e.accounts.put(a)
	return a
}
