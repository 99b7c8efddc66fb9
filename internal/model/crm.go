package model

import "time"

// Contact is a person discovered at a facility via the contact-search
// provider, or entered by hand.
type Contact struct {
	ID          string    `json:"id"`
	FacilityID  string    `json:"facility_id"`
	SourceID    string    `json:"source_id,omitempty"` // provider person identifier, dedup key
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Title       string    `json:"title"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	LinkedInURL string    `json:"linkedin_url"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Visit records a site visit to a facility.
type Visit struct {
	ID           string      `json:"id"`
	FacilityID   string      `json:"facility_id"`
	FacilityName string      `json:"facility_name,omitempty"` // joined, list views only
	VisitDate    string      `json:"visit_date"`              // YYYY-MM-DD
	Notes        string      `json:"notes"`
	Files        []VisitFile `json:"files"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// VisitFile is a document attached to a visit.
type VisitFile struct {
	ID           string    `json:"id"`
	VisitID      string    `json:"visit_id"`
	Filename     string    `json:"filename"` // stored name on disk
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProjectStatus tracks a sales project through its lifecycle.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusQuoted    ProjectStatus = "quoted"
	ProjectStatusWon       ProjectStatus = "won"
	ProjectStatusLost      ProjectStatus = "lost"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

// Project is a sales project opened against a facility. PRNumber is a
// human-readable reference allocated from the "pr" sequence.
type Project struct {
	ID            string        `json:"id"`
	FacilityID    string        `json:"facility_id"`
	FacilityName  string        `json:"facility_name,omitempty"`
	PRNumber      string        `json:"pr_number"`
	Status        ProjectStatus `json:"status"`
	SourceVisitID *string       `json:"source_visit_id"`
	Notes         string        `json:"notes"`
	Files         []ProjectFile `json:"files"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ProjectFile is a document attached to a project.
type ProjectFile struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Commissioning marks a won project handed over to commissioning.
// CommNumber is allocated from the "comm" sequence.
type Commissioning struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	CommNumber    string        `json:"comm_number"`
	PRNumber      string        `json:"pr_number,omitempty"` // joined, list views only
	FacilityID    string        `json:"facility_id,omitempty"`
	FacilityName  string        `json:"facility_name,omitempty"`
	ProjectStatus ProjectStatus `json:"project_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
