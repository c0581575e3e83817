package types

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// EvidenceItem is a tracked piece of evidence belonging to a case. File bytes
// live with the storage collaborator; this record holds only the path/hash
// reference and the chain of custody.
type EvidenceItem struct {
	ID                string           `json:"id"`
	CaseID            string           `json:"case_id"`
	Type              EvidenceType     `json:"type"`
	Classification    Classification   `json:"classification"`
	Description       string           `json:"description,omitempty"`
	StoragePath       string           `json:"storage_path,omitempty"`
	ContentHash       string           `json:"content_hash,omitempty"`
	ProcessingStatus  ProcessingStatus `json:"processing_status"`
	IntegrityVerified bool             `json:"integrity_verified,omitempty"`
	Chain             []CustodyEntry   `json:"chain"`
	CollectedBy       string           `json:"collected_by"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Validate checks the evidence item's field values.
func (e *EvidenceItem) Validate() error {
	var errs []error
	if e.CaseID == "" {
		errs = append(errs, fmt.Errorf("case id is required"))
	}
	if !e.Type.IsValid() {
		errs = append(errs, fmt.Errorf("invalid evidence type: %s", e.Type))
	}
	if !e.Classification.IsValid() {
		errs = append(errs, fmt.Errorf("invalid classification: %s", e.Classification))
	}
	if !e.ProcessingStatus.IsValid() {
		errs = append(errs, fmt.Errorf("invalid processing status: %s", e.ProcessingStatus))
	}
	if e.CollectedBy == "" {
		errs = append(errs, fmt.Errorf("collected_by is required"))
	}
	return errors.Join(errs...)
}

// ChainLength returns the custody chain length. The chain only ever grows.
func (e *EvidenceItem) ChainLength() int {
	return len(e.Chain)
}

// IsFullyProcessed reports whether this item no longer blocks case closure.
func (e *EvidenceItem) IsFullyProcessed() bool {
	return e.ProcessingStatus == ProcessingProcessed || e.ProcessingStatus == ProcessingArchived
}

// ComputeContentHash derives a stable hash of the evidence reference fields.
// Used to detect drift between the custody record and the stored bytes.
func (e *EvidenceItem) ComputeContentHash() string {
	h := sha256.New()
	h.Write([]byte(e.CaseID))
	h.Write([]byte{0})
	h.Write([]byte(e.Type))
	h.Write([]byte{0})
	h.Write([]byte(e.StoragePath))
	h.Write([]byte{0})
	h.Write([]byte(e.Description))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CustodyEntry is one link in an evidence item's chain of custody.
// Immutable once appended; the ledger exposes no edit or delete path.
type CustodyEntry struct {
	ID         string            `json:"id"`
	Action     CustodyAction     `json:"action"`
	Timestamp  time.Time         `json:"timestamp"`
	Actor      string            `json:"actor"`
	Location   string            `json:"location,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Condition  EvidenceCondition `json:"condition,omitempty"`
	Reverified bool              `json:"reverified,omitempty"`
}

// CustodyAction categorizes custody chain entries
type CustodyAction string

// Custody action constants
const (
	CustodyCollected   CustodyAction = "collected"
	CustodyTransferred CustodyAction = "transferred"
	CustodyProcessed   CustodyAction = "processed"
	CustodyVerified    CustodyAction = "verified"
)

// IsValid checks if the custody action value is valid
func (a CustodyAction) IsValid() bool {
	switch a {
	case CustodyCollected, CustodyTransferred, CustodyProcessed, CustodyVerified:
		return true
	}
	return false
}

// EvidenceCondition records the observed state of evidence at a custody event.
type EvidenceCondition string

// Evidence condition constants
const (
	ConditionGood        EvidenceCondition = "good"
	ConditionDamaged     EvidenceCondition = "damaged"
	ConditionCompromised EvidenceCondition = "compromised"
)

// IsValid checks if the evidence condition value is valid
func (c EvidenceCondition) IsValid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionCompromised:
		return true
	}
	return false
}

// EvidenceType categorizes evidence items
type EvidenceType string

// Evidence type constants
const (
	EvidencePhoto            EvidenceType = "photo"
	EvidenceVideo            EvidenceType = "video"
	EvidenceDocument         EvidenceType = "document"
	EvidencePhysical         EvidenceType = "physical"
	EvidenceDigital          EvidenceType = "digital"
	EvidenceWitnessStatement EvidenceType = "witness-statement"
	EvidenceExpertAnalysis   EvidenceType = "expert-analysis"
)

// IsValid checks if the evidence type value is valid
func (t EvidenceType) IsValid() bool {
	switch t {
	case EvidencePhoto, EvidenceVideo, EvidenceDocument, EvidencePhysical,
		EvidenceDigital, EvidenceWitnessStatement, EvidenceExpertAnalysis:
		return true
	}
	return false
}

// Classification is the sensitivity level of an evidence item.
type Classification string

// Classification constants
const (
	ClassPublic       Classification = "public"
	ClassInternal     Classification = "internal"
	ClassConfidential Classification = "confidential"
	ClassRestricted   Classification = "restricted"
)

// IsValid checks if the classification value is valid
func (c Classification) IsValid() bool {
	switch c {
	case ClassPublic, ClassInternal, ClassConfidential, ClassRestricted:
		return true
	}
	return false
}

// ProcessingStatus is the lab/processing state of an evidence item.
// Case closure requires every item to be processed or archived.
type ProcessingStatus string

// Processing status constants
const (
	ProcessingPending          ProcessingStatus = "pending"
	ProcessingInProgress       ProcessingStatus = "in_progress"
	ProcessingProcessed        ProcessingStatus = "processed"
	ProcessingRejected         ProcessingStatus = "rejected"
	ProcessingRequiresAnalysis ProcessingStatus = "requires_analysis"
	ProcessingArchived         ProcessingStatus = "archived"
)

// IsValid checks if the processing status value is valid
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingPending, ProcessingInProgress, ProcessingProcessed,
		ProcessingRejected, ProcessingRequiresAnalysis, ProcessingArchived:
		return true
	}
	return false
}
