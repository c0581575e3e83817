package types

import (
	"errors"
	"fmt"
	"time"
)

// Case is a formal investigation, optionally derived from one or more
// incidents. It owns evidence and the closure documentation that the
// closure gate checks before the closed status can be written.
type Case struct {
	ID               string       `json:"id"`
	CaseNumber       string       `json:"case_number"`
	Type             CaseType     `json:"type"`
	Status           CaseStatus   `json:"status"`
	Priority         Priority     `json:"priority"`
	Title            string       `json:"title"`
	LeadInvestigator string       `json:"lead_investigator"`
	IncidentIDs      []string     `json:"incident_ids,omitempty"`
	EvidenceIDs      []string     `json:"evidence_ids,omitempty"`
	StatusHistory    []StatusChange `json:"status_history,omitempty"`
	Conclusion       string       `json:"conclusion,omitempty"`
	Recommendations  string       `json:"recommendations,omitempty"`
	Outcome          CaseOutcome  `json:"outcome,omitempty"`
	RetentionUntil   time.Time    `json:"retention_until"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
	ClosedBy         string       `json:"closed_by,omitempty"`
}

// Validate checks the case's field values.
func (c *Case) Validate() error {
	var errs []error
	if c.Title == "" {
		errs = append(errs, fmt.Errorf("title is required"))
	}
	if len(c.Title) > 500 {
		errs = append(errs, fmt.Errorf("title must be 500 characters or less (got %d)", len(c.Title)))
	}
	if !c.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid case type: %s", c.Type))
	}
	if !c.Status.IsValid() {
		errs = append(errs, fmt.Errorf("invalid status: %s", c.Status))
	}
	if !c.Priority.IsValid() {
		errs = append(errs, fmt.Errorf("invalid priority: %s", c.Priority))
	}
	if c.LeadInvestigator == "" {
		errs = append(errs, fmt.Errorf("lead investigator is required"))
	}
	if c.Outcome != "" && !c.Outcome.IsValid() {
		errs = append(errs, fmt.Errorf("invalid outcome: %s", c.Outcome))
	}
	// Closed cases carry their closure record; open cases must not.
	if c.Status == CaseClosed && c.ClosedAt == nil {
		errs = append(errs, fmt.Errorf("closed cases must have closed_at timestamp"))
	}
	if c.Status != CaseClosed && c.ClosedAt != nil {
		errs = append(errs, fmt.Errorf("non-closed cases cannot have closed_at timestamp"))
	}
	return errors.Join(errs...)
}

// AppendStatusChange records a transition in the case's append-only history.
func (c *Case) AppendStatusChange(ch StatusChange) {
	c.StatusHistory = append(c.StatusHistory, ch)
}

// StatusChange is one entry in a case's append-only status history.
type StatusChange struct {
	From             CaseStatus `json:"from"`
	To               CaseStatus `json:"to"`
	ChangedBy        string     `json:"changed_by"`
	Role             Role       `json:"role"`
	RequiresApproval bool       `json:"requires_approval,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// CaseStatus represents the investigation stage of a case
type CaseStatus string

// Case status constants
const (
	CaseOpen               CaseStatus = "open"
	CaseInvestigating      CaseStatus = "investigating"
	CaseEvidenceCollection CaseStatus = "evidence_collection"
	CaseAnalysis           CaseStatus = "analysis"
	CaseClosed             CaseStatus = "closed"
)

// IsValid checks if the case status value is valid
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseOpen, CaseInvestigating, CaseEvidenceCollection, CaseAnalysis, CaseClosed:
		return true
	}
	return false
}

// CaseType categorizes an investigation and drives its retention period.
type CaseType string

// Case type constants
const (
	CaseInvestigation   CaseType = "investigation"
	CaseSecurityReview  CaseType = "security-review"
	CaseComplianceAudit CaseType = "compliance-audit"
	CasePersonnelMatter CaseType = "personnel-matter"
	CasePropertyLoss    CaseType = "property-loss"
)

// IsValid checks if the case type value is valid
func (t CaseType) IsValid() bool {
	switch t {
	case CaseInvestigation, CaseSecurityReview, CaseComplianceAudit,
		CasePersonnelMatter, CasePropertyLoss:
		return true
	}
	return false
}

// CaseOutcome records how a closed case resolved.
type CaseOutcome string

// Case outcome constants
const (
	OutcomeResolved     CaseOutcome = "resolved"
	OutcomeUnfounded    CaseOutcome = "unfounded"
	OutcomeReferred     CaseOutcome = "referred"
	OutcomeInconclusive CaseOutcome = "inconclusive"
)

// IsValid checks if the case outcome value is valid
func (o CaseOutcome) IsValid() bool {
	switch o {
	case OutcomeResolved, OutcomeUnfounded, OutcomeReferred, OutcomeInconclusive:
		return true
	}
	return false
}
