// Package store persists facilities and their CRM records. Two backends
// implement the same interface: SQLite for single-binary deployments and
// Postgres for shared ones.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/integratec/plant-crm/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness rule blocks the operation,
// e.g. converting a project that already has a commissioning.
var ErrConflict = errors.New("conflict")

// Sequence names.
const (
	SequencePR   = "pr"
	SequenceComm = "comm"
)

// FormatSequence renders a sequence value as its human-readable reference
// ("pr", 7 -> "PR-007").
func FormatSequence(name string, value int) string {
	prefix := "PR"
	if name == SequenceComm {
		prefix = "COMM"
	}
	return fmt.Sprintf("%s-%03d", prefix, value)
}

// FacilityFilter specifies criteria for listing facilities.
type FacilityFilter struct {
	Contacted *bool
	Limit     int
	Offset    int
}

// CRMUpdate is a partial update of a facility's CRM-only fields. The Set
// flags distinguish "clear this field" from "leave it alone".
type CRMUpdate struct {
	Contacted       *bool
	CurrentCustomer *bool
	FollowUpDate    *string
	FollowUpDateSet bool
	Notes           *string
	NotesSet        bool
}

// Empty reports whether the update touches nothing.
func (u CRMUpdate) Empty() bool {
	return u.Contacted == nil && u.CurrentCustomer == nil && !u.FollowUpDateSet && !u.NotesSet
}

// ProjectUpdate is a partial update of a project.
type ProjectUpdate struct {
	Status *model.ProjectStatus
	Notes  *string
}

// Store defines the persistence interface for the CRM.
type Store interface {
	// Facilities
	UpsertFacility(ctx context.Context, f model.Facility) (created bool, err error)
	ListFacilities(ctx context.Context, filter FacilityFilter) ([]model.Facility, error)
	GetFacility(ctx context.Context, id string) (*model.Facility, error)
	UpdateFacilityCRM(ctx context.Context, id string, update CRMUpdate) (*model.Facility, error)
	DeleteFacility(ctx context.Context, id string) error
	DeleteFacilities(ctx context.Context, ids []string) (int, error)
	CountFacilities(ctx context.Context) (int, error)
	FacilityMetrics(ctx context.Context) (*model.Metrics, error)

	// Contacts
	ListContacts(ctx context.Context, facilityID string) ([]model.Contact, error)
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error)
	ContactSourceIDs(ctx context.Context, facilityID string) (map[string]struct{}, error)
	DeleteContact(ctx context.Context, id string) error

	// Visits
	CreateVisit(ctx context.Context, v model.Visit) (*model.Visit, error)
	ListVisits(ctx context.Context, facilityID string) ([]model.Visit, error)
	GetVisit(ctx context.Context, id string) (*model.Visit, error)
	DeleteVisit(ctx context.Context, id string) error
	AddVisitFile(ctx context.Context, f model.VisitFile) (*model.VisitFile, error)
	GetVisitFile(ctx context.Context, visitID, filename string) (*model.VisitFile, error)

	// Projects
	CreateProject(ctx context.Context, p model.Project) (*model.Project, error)
	ListProjects(ctx context.Context, facilityID string) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, id string, update ProjectUpdate) (*model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	AddProjectFile(ctx context.Context, f model.ProjectFile) (*model.ProjectFile, error)
	GetProjectFile(ctx context.Context, projectID, filename string) (*model.ProjectFile, error)

	// Commissionings
	CreateCommissioning(ctx context.Context, projectID string) (*model.Commissioning, error)
	ListCommissionings(ctx context.Context, facilityID string) ([]model.Commissioning, error)

	// NextSequence atomically allocates the next value of a named sequence
	// and returns it with its formatted reference.
	NextSequence(ctx context.Context, name string) (int, string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
