// Package causal provides the causal-relationship store for Xylem:
// cause→effect records, chain traversal, and pattern analysis.
package causal

import "time"

// RelationType classifies how a cause produces its effect.
type RelationType string

const (
	RelationDirect        RelationType = "direct"
	RelationIndirect      RelationType = "indirect"
	RelationConditional   RelationType = "conditional"
	RelationProbabilistic RelationType = "probabilistic"
	RelationTemporal      RelationType = "temporal"
)

// Category groups relationships by the domain the causation operates in.
type Category string

const (
	CategoryPhysical      Category = "physical"
	CategoryLogical       Category = "logical"
	CategorySocial        Category = "social"
	CategoryEconomic      Category = "economic"
	CategoryPsychological Category = "psychological"
	CategoryTemporal      Category = "temporal"
)

// validRelationTypes and validCategories gate what Store accepts.
var validRelationTypes = map[RelationType]bool{
	RelationDirect:        true,
	RelationIndirect:      true,
	RelationConditional:   true,
	RelationProbabilistic: true,
	RelationTemporal:      true,
}

var validCategories = map[Category]bool{
	CategoryPhysical:      true,
	CategoryLogical:       true,
	CategorySocial:        true,
	CategoryEconomic:      true,
	CategoryPsychological: true,
	CategoryTemporal:      true,
}

// CausalRelationship is the sole persisted entity: a directed cause→effect
// edge owned by an agent. Nodes have no table of their own; the graph is
// reconstructed purely from Cause.ID / Effect.ID matching.
//
// The JSON field names below are the durable document shape and must be
// preserved for interoperability with existing data.
type CausalRelationship struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Type     RelationType `json:"type"`
	Category Category     `json:"category"`

	// Strength is the causal strength of this edge; Confidence is the
	// confidence in the edge's existence. Both caller-supplied, in [0,1].
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`

	Cause  Cause  `json:"cause"`
	Effect Effect `json:"effect"`

	Mechanism Mechanism `json:"mechanism"`
	Evidence  Evidence  `json:"evidence"`

	// Network holds caller-maintained back-pointer hints. They may be stale
	// or incomplete; traversal never reads them and rediscovers structure
	// from cause/effect ids.
	Network Network `json:"network"`

	Temporal  TemporalInfo `json:"temporal"`
	Inference Inference    `json:"inference"`
	Learning  Learning     `json:"learning"`
	Metadata  Metadata     `json:"metadata"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Cause identifies the upstream node of a relationship.
type Cause struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Context     CauseContext   `json:"context"`
}

// CauseContext captures when, where, and among whom the cause applies.
type CauseContext struct {
	Temporal TimeWindow `json:"temporal"`
	Spatial  string     `json:"spatial,omitempty"`
	Social   []string   `json:"social,omitempty"`
}

// TimeWindow bounds a cause's applicability in time. Zero values mean open.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Effect identifies the downstream node plus the shape of the impact.
type Effect struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`

	// Magnitude in [-1,1]: signed size of the effect. Probability in [0,1]:
	// likelihood the effect follows the cause. Delay and Duration are in
	// caller-chosen time units (the store does not interpret them).
	Magnitude   float64 `json:"magnitude"`
	Probability float64 `json:"probability"`
	Delay       float64 `json:"delay"`
	Duration    float64 `json:"duration"`
}

// Mechanism describes how the cause produces the effect.
type Mechanism struct {
	Steps         []string       `json:"steps,omitempty"`
	Preconditions []Precondition `json:"preconditions,omitempty"`
	Moderators    []Moderator    `json:"moderators,omitempty"`
}

// Precondition is a condition that must (or may) hold for the mechanism to fire.
type Precondition struct {
	Description string  `json:"description"`
	Required    bool    `json:"required"`
	Probability float64 `json:"probability"`
}

// ModeratorInfluence is how a moderator changes the effect.
type ModeratorInfluence string

const (
	ModeratorAmplify  ModeratorInfluence = "amplify"
	ModeratorDiminish ModeratorInfluence = "diminish"
	ModeratorReverse  ModeratorInfluence = "reverse"
	ModeratorDelay    ModeratorInfluence = "delay"
)

// Moderator amplifies, diminishes, reverses, or delays the effect.
type Moderator struct {
	Name      string             `json:"name"`
	Influence ModeratorInfluence `json:"influence"`
	Strength  float64            `json:"strength"`
}

// Evidence is purely descriptive caller-supplied support for the edge.
// The engine never aggregates it.
type Evidence struct {
	Empirical       []EmpiricalItem   `json:"empirical,omitempty"`
	Correlations    []Correlation     `json:"correlations,omitempty"`
	Theoretical     []string          `json:"theoretical,omitempty"`
	CounterEvidence []CounterEvidence `json:"counterEvidence,omitempty"`
}

// EmpiricalItem is one observation or experiment supporting the edge.
type EmpiricalItem struct {
	Type        string    `json:"type"` // observation or experiment
	Description string    `json:"description,omitempty"`
	Reliability float64   `json:"reliability"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Correlation is a measured statistical association the caller observed.
type Correlation struct {
	Variable    string  `json:"variable"`
	Coefficient float64 `json:"coefficient"`
	SampleSize  int     `json:"sampleSize,omitempty"`
}

// CounterEvidence weighs against the edge's existence.
type CounterEvidence struct {
	Description string  `json:"description"`
	Strength    float64 `json:"strength"`
}

// Network holds denormalized back-pointers to other relationship ids.
// Advisory hints only — they can drift from the authoritative edge set.
type Network struct {
	ParentCauses []string `json:"parentCauses,omitempty"`
	ChildEffects []string `json:"childEffects,omitempty"`
	Confounders  []string `json:"confounders,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// TemporalInfo tracks when the relationship has been observed.
type TemporalInfo struct {
	FirstObserved    time.Time `json:"firstObserved,omitempty"`
	LastObserved     time.Time `json:"lastObserved,omitempty"`
	ObservationCount int       `json:"observationCount,omitempty"`
	Stability        float64   `json:"stability,omitempty"`
}

// Inference records how the edge was inferred and its uncertainty split.
type Inference struct {
	Method               string  `json:"method,omitempty"`
	AleatoricUncertainty float64 `json:"aleatoricUncertainty,omitempty"`
	EpistemicUncertainty float64 `json:"epistemicUncertainty,omitempty"`
}

// Learning tracks in-place strength/confidence revisions over time.
type Learning struct {
	UpdateCount int              `json:"updateCount,omitempty"`
	LastUpdated time.Time        `json:"lastUpdated,omitempty"`
	History     []LearningUpdate `json:"history,omitempty"`
}

// LearningUpdate is one revision applied by an external learning trigger.
type LearningUpdate struct {
	Timestamp  time.Time `json:"timestamp"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
}

// Metadata is auxiliary bookkeeping consumed by other subsystems.
type Metadata struct {
	Framework string   `json:"framework,omitempty"`
	Version   int      `json:"version,omitempty"`
	Quality   float64  `json:"quality,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}
