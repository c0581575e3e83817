package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/vigilops/vigil/internal/types"
)

// Memory is a handler's private record of past decisions and the running
// aggregates derived from them. The conversation list is append-only and
// metrics are maintained incrementally: each decision folds into the
// running averages in O(1), never by rescanning history.
//
// Reads return copies. Concurrent routing to the same handler serializes
// on the memory's mutex, so the read-modify-write on the running averages
// is atomic.
type Memory struct {
	mu            sync.Mutex
	key           string
	conversations []types.ConversationEntry
	patterns      map[string]int
	metrics       types.SuccessMetrics
	sopStats      map[types.ActivityType]*types.SOPEffectiveness
}

// Decision metadata keys handlers may set to enrich SOP tracking.
const (
	MetaSOPKey    = "sop"
	MetaDeviation = "deviation"
)

func newMemory(key string) *Memory {
	return &Memory{
		key:      key,
		patterns: make(map[string]int),
		sopStats: make(map[types.ActivityType]*types.SOPEffectiveness),
	}
}

// Key returns the owning handler's capability key.
func (m *Memory) Key() string {
	return m.key
}

// RecordDecision appends a conversation entry and folds the decision into
// the running metrics and per-type SOP effectiveness.
func (m *Memory) RecordDecision(entityID string, entityType types.ActivityType, dec *types.Decision, latency time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := dec.Outcome()
	m.conversations = append(m.conversations, types.ConversationEntry{
		DecisionID: dec.ID,
		EntityID:   entityID,
		Action:     dec.Action,
		Outcome:    outcome,
		Confidence: dec.Confidence,
		Latency:    latency,
		Timestamp:  now,
	})

	m.patterns[string(entityType)+"/"+string(dec.Action)]++

	success := 0.0
	if outcome == types.OutcomeSuccess {
		success = 1.0
	}
	escalated := 0.0
	if dec.EscalationRequired {
		escalated = 1.0
	}
	compliant := 0.0
	if len(dec.SOPSteps) > 0 {
		compliant = 1.0
	}
	latencyMillis := float64(latency) / float64(time.Millisecond)

	n := float64(m.metrics.TotalHandled + 1)
	m.metrics.AvgResponseMillis = fold(m.metrics.AvgResponseMillis, latencyMillis, n)
	m.metrics.ResolutionRate = fold(m.metrics.ResolutionRate, success, n)
	m.metrics.EscalationRate = fold(m.metrics.EscalationRate, escalated, n)
	m.metrics.SOPComplianceRate = fold(m.metrics.SOPComplianceRate, compliant, n)
	m.metrics.TotalHandled++
	m.metrics.LastProcessed = now

	stats := m.sopStats[entityType]
	if stats == nil {
		stats = &types.SOPEffectiveness{IncidentType: entityType}
		m.sopStats[entityType] = stats
	}
	if key := dec.Metadata[MetaSOPKey]; key != "" {
		stats.SOPKey = key
	}
	sn := float64(stats.Applications + 1)
	stats.ComplianceRate = fold(stats.ComplianceRate, compliant, sn)
	stats.AvgResolutionMillis = fold(stats.AvgResolutionMillis, latencyMillis, sn)
	stats.SuccessRate = fold(stats.SuccessRate, success, sn)
	stats.Applications++
	if dev := dec.Metadata[MetaDeviation]; dev != "" {
		stats.Deviations = appendUnique(stats.Deviations, dev)
	}
}

// fold advances a running mean by one value: newAvg = (oldAvg*(n-1)+v)/n.
func fold(avg, v, n float64) float64 {
	return (avg*(n-1) + v) / n
}

// Metrics returns a copy of the running success metrics.
func (m *Memory) Metrics() types.SuccessMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Conversations returns a copy of the decision history, oldest first.
func (m *Memory) Conversations() []types.ConversationEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ConversationEntry, len(m.conversations))
	copy(out, m.conversations)
	return out
}

// Patterns returns a copy of the learned pattern counts, keyed by
// "<entity type>/<action>".
func (m *Memory) Patterns() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.patterns))
	for k, v := range m.patterns {
		out[k] = v
	}
	return out
}

// SOPStats returns copies of the per-type SOP effectiveness records,
// sorted by incident type.
func (m *Memory) SOPStats() []types.SOPEffectiveness {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.SOPEffectiveness, 0, len(m.sopStats))
	for _, stats := range m.sopStats {
		s := *stats
		s.Deviations = append([]string(nil), stats.Deviations...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IncidentType < out[j].IncidentType })
	return out
}

// Reset clears the memory. Only explicit operator action calls this;
// nothing in the engine resets memory on its own.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = nil
	m.patterns = make(map[string]int)
	m.metrics = types.SuccessMetrics{}
	m.sopStats = make(map[types.ActivityType]*types.SOPEffectiveness)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
