package domain

import "time"

// Status is the lifecycle state of a provisioning record. A record is created
// in StatusCreating before any Google Cloud call is made and only ever moves
// forward through the transition table below.
type Status string

const (
	StatusCreating Status = "creating"
	StatusActive   Status = "active"
	StatusError    Status = "error"
	StatusDeleted  Status = "deleted"
)

// allowedTransitions is the full set of legal status moves. Active and error
// are terminal for a provisioning attempt; deleted is reachable from any
// state via soft delete.
var allowedTransitions = map[Status][]Status{
	StatusCreating: {StatusActive, StatusError, StatusDeleted},
	StatusActive:   {StatusDeleted},
	StatusError:    {StatusDeleted},
	StatusDeleted:  {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, t := range allowedTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether a provisioning attempt can no longer advance
// (soft delete aside).
func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusError || s == StatusDeleted
}

// StepWarning records a non-fatal pipeline step failure (API enablement,
// billing linkage, notification). Warnings are persisted with the record so
// callers can see partial success instead of digging through logs.
type StepWarning struct {
	Step    string    `json:"step"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Project is one managed BigQuery project provisioning attempt. ProjectID is
// the externally-visible Google Cloud project ID: it is assigned before the
// first provider call and never changes afterwards, so the record stays
// addressable no matter where the pipeline stopped.
type Project struct {
	ID                  string        `json:"id"`
	AccountID           string        `json:"-"`
	ProjectID           string        `json:"project_id"`
	ProjectName         string        `json:"project_name"`
	ProjectNumber       string        `json:"project_number,omitempty"`
	DefaultDataset      string        `json:"default_dataset"`
	Location            string        `json:"location"`
	BillingAccountID    string        `json:"billing_account_id,omitempty"`
	ServiceAccountEmail string        `json:"service_account_email,omitempty"`
	Status              Status        `json:"status"`
	ErrorMessage        string        `json:"error_message,omitempty"`
	Warnings            []StepWarning `json:"warnings,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	DeletedAt           *time.Time    `json:"deleted_at,omitempty"`
}

// DefaultDatasetID is the dataset created in every managed project.
const DefaultDatasetID = "datacharted"

// StatusReport is the polling view of a record served to clients waiting for
// provisioning to finish.
type StatusReport struct {
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
