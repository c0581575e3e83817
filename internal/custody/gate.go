package custody

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vigilops/vigil/internal/types"
)

// ErrClosureBlocked is returned when a case cannot close because the gate
// found unmet requirements. Wrapped errors carry the reasons.
var ErrClosureBlocked = errors.New("case closure blocked")

// CloseCheck is the outcome of the case closure gate.
type CloseCheck struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Err returns nil when closure is allowed, otherwise ErrClosureBlocked
// wrapped with the gate's reasons.
func (c CloseCheck) Err() error {
	if c.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrClosureBlocked, strings.Join(c.Reasons, "; "))
}

// CheckClose is the single authoritative closure gate for a case. Closing
// requires a non-empty conclusion and recommendations and every evidence
// item processed or archived. The check is pure and must run synchronously
// before any status write to closed; it is a gate, not advice.
func CheckClose(kase *types.Case, evidence []*types.EvidenceItem) CloseCheck {
	var reasons []string
	if kase.Conclusion == "" {
		reasons = append(reasons, "conclusion is required before closing")
	}
	if kase.Recommendations == "" {
		reasons = append(reasons, "recommendations are required before closing")
	}
	for _, item := range evidence {
		if item.IsFullyProcessed() {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("evidence %s is %s, must be processed or archived", item.ID, item.ProcessingStatus))
	}
	return CloseCheck{Allowed: len(reasons) == 0, Reasons: reasons}
}
