// Package gcp wraps the Google Cloud surfaces the provisioning pipeline
// drives: Resource Manager (folders, projects, IAM policy), Service Usage,
// Cloud Billing, BigQuery datasets and IAM service accounts. It hides
// long-running operation polling and keeps call-rate limits in one place so
// the orchestrator stays free of transport concerns.
package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	bigquery "google.golang.org/api/bigquery/v2"
	cloudbilling "google.golang.org/api/cloudbilling/v1"
	crm "google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/googleapi"
	iam "google.golang.org/api/iam/v1"
	"google.golang.org/api/option"
	serviceusage "google.golang.org/api/serviceusage/v1"

	"github.com/datacharted/go-provisioning-backend/config"
)

// ErrNotFound signals that a referenced cloud resource no longer resolves.
// Callers use it to distinguish recoverable resolution failures (recreate the
// folder) from everything else.
var ErrNotFound = errors.New("gcp: resource not found")

// Folder is the slice of a Resource Manager folder the allocator cares about.
type Folder struct {
	Name        string // "folders/123456789"
	DisplayName string
}

type Client struct {
	crm     *crm.Service
	usage   *serviceusage.Service
	billing *cloudbilling.APIService
	bq      *bigquery.Service
	iam     *iam.Service

	organizationID   string
	billingAccountID string
	folderOpTimeout  time.Duration
	projectOpTimeout time.Duration

	limiter *rate.Limiter
}

// NewClient builds a Client from explicit credentials if configured,
// otherwise application default credentials. When extraOpts are given they
// replace credential discovery entirely (used by tests to point the client at
// a local server).
func NewClient(ctx context.Context, cfg config.GCPConfig, extraOpts ...option.ClientOption) (*Client, error) {
	opts := extraOpts
	if len(opts) == 0 {
		if cfg.CredentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
		} else {
			creds, err := google.FindDefaultCredentials(ctx, crm.CloudPlatformScope)
			if err != nil {
				return nil, fmt.Errorf("gcp credentials: %w", err)
			}
			if creds.JSON != nil {
				opts = append(opts, option.WithCredentialsJSON(creds.JSON))
			}
		}
	}

	crmSvc, err := crm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudresourcemanager.NewService: %w", err)
	}
	usageSvc, err := serviceusage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("serviceusage.NewService: %w", err)
	}
	billingSvc, err := cloudbilling.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudbilling.NewService: %w", err)
	}
	bqSvc, err := bigquery.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewService: %w", err)
	}
	iamSvc, err := iam.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("iam.NewService: %w", err)
	}

	return &Client{
		crm:              crmSvc,
		usage:            usageSvc,
		billing:          billingSvc,
		bq:               bqSvc,
		iam:              iamSvc,
		organizationID:   cfg.OrganizationID,
		billingAccountID: cfg.BillingAccountID,
		folderOpTimeout:  cfg.FolderOpTimeout,
		projectOpTimeout: cfg.ProjectOpTimeout,
		limiter:          rate.NewLimiter(rate.Limit(4), 8),
	}, nil
}

// GetFolder resolves a folder by its full resource name.
func (c *Client) GetFolder(ctx context.Context, name string) (*Folder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f, err := c.crm.Folders.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, mapNotFound(err, "get folder %s", name)
	}
	return &Folder{Name: f.Name, DisplayName: f.DisplayName}, nil
}

// CreateFolder creates a folder under the configured organization and blocks
// until the operation completes or the folder timeout elapses.
func (c *Client) CreateFolder(ctx context.Context, displayName string) (*Folder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	op, err := c.crm.Folders.Create(&crm.Folder{
		DisplayName: displayName,
		Parent:      "organizations/" + c.organizationID,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", displayName, err)
	}

	resp, err := c.waitCRMOperation(ctx, op, c.folderOpTimeout)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", displayName, err)
	}

	var folder crm.Folder
	if err := json.Unmarshal(resp, &folder); err != nil {
		return nil, fmt.Errorf("decode folder operation response: %w", err)
	}
	return &Folder{Name: folder.Name, DisplayName: folder.DisplayName}, nil
}

// CreateProject creates a project inside the given folder and blocks until
// the operation completes or the project timeout elapses. It returns the
// provider-assigned numeric project number.
func (c *Client) CreateProject(ctx context.Context, projectID, displayName, parentFolder string, labels map[string]string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	op, err := c.crm.Projects.Create(&crm.Project{
		ProjectId:   projectID,
		DisplayName: displayName,
		Parent:      parentFolder,
		Labels:      labels,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create project %s: %w", projectID, err)
	}

	resp, err := c.waitCRMOperation(ctx, op, c.projectOpTimeout)
	if err != nil {
		return "", fmt.Errorf("create project %s: %w", projectID, err)
	}

	var project crm.Project
	if err := json.Unmarshal(resp, &project); err != nil {
		return "", fmt.Errorf("decode project operation response: %w", err)
	}
	// project.Name is "projects/{number}"
	number := strings.TrimPrefix(project.Name, "projects/")
	if number == "" {
		return "", fmt.Errorf("create project %s: operation response missing project number", projectID)
	}
	return number, nil
}

// EnableServices batch-enables the given service APIs on the project.
func (c *Client) EnableServices(ctx context.Context, projectID string, services []string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	op, err := c.usage.Services.BatchEnable("projects/"+projectID, &serviceusage.BatchEnableServicesRequest{
		ServiceIds: services,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("enable services on %s: %w", projectID, err)
	}
	if err := c.waitUsageOperation(ctx, op, 2*time.Minute); err != nil {
		return fmt.Errorf("enable services on %s: %w", projectID, err)
	}
	return nil
}

// LinkBilling attaches the project to the configured billing account.
func (c *Client) LinkBilling(ctx context.Context, projectID string) error {
	if c.billingAccountID == "" {
		return fmt.Errorf("no billing account configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.billing.Projects.UpdateBillingInfo("projects/"+projectID, &cloudbilling.ProjectBillingInfo{
		BillingAccountName: "billingAccounts/" + c.billingAccountID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("link billing for %s: %w", projectID, err)
	}
	return nil
}

// CreateDataset creates the default dataset in the given location. An
// already-existing dataset is treated as success.
func (c *Client) CreateDataset(ctx context.Context, projectID, datasetID, location string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bq.Datasets.Insert(projectID, &bigquery.Dataset{
		DatasetReference: &bigquery.DatasetReference{
			ProjectId: projectID,
			DatasetId: datasetID,
		},
		Location:    location,
		Description: "DataCharted managed dataset for data pipeline",
	}).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			return nil
		}
		return fmt.Errorf("create dataset %s.%s: %w", projectID, datasetID, err)
	}
	return nil
}

// CreateServiceAccount creates the integration service account scoped to the
// project and returns its email. An already-existing account is treated as
// success since the email is deterministic.
func (c *Client) CreateServiceAccount(ctx context.Context, projectID, accountID, displayName string) (string, error) {
	email := fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, projectID)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	sa, err := c.iam.Projects.ServiceAccounts.Create("projects/"+projectID, &iam.CreateServiceAccountRequest{
		AccountId: accountID,
		ServiceAccount: &iam.ServiceAccount{
			DisplayName: displayName,
		},
	}).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			return email, nil
		}
		return "", fmt.Errorf("create service account %s: %w", email, err)
	}
	return sa.Email, nil
}

// GrantProjectViewer adds member (e.g. "user:alice@example.com") to the
// project's roles/viewer binding.
func (c *Client) GrantProjectViewer(ctx context.Context, projectID, member string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resource := "projects/" + projectID
	policy, err := c.crm.Projects.GetIamPolicy(resource, &crm.GetIamPolicyRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get iam policy for %s: %w", projectID, err)
	}

	const role = "roles/viewer"
	var binding *crm.Binding
	for _, b := range policy.Bindings {
		if b.Role == role {
			binding = b
			break
		}
	}
	if binding == nil {
		binding = &crm.Binding{Role: role}
		policy.Bindings = append(policy.Bindings, binding)
	}
	for _, m := range binding.Members {
		if m == member {
			return nil
		}
	}
	binding.Members = append(binding.Members, member)

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = c.crm.Projects.SetIamPolicy(resource, &crm.SetIamPolicyRequest{Policy: policy}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("set iam policy for %s: %w", projectID, err)
	}
	return nil
}

func mapNotFound(err error, format string, args ...any) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 404 {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 409
}
