package scan

import (
	"time"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// RiskLevel is the five-tier classification of a threat score.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelForScore maps a 0-100 score to its tier.
// Thresholds: CRITICAL >=80, HIGH >=50, MEDIUM >=20, LOW >=1, else SAFE.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 20:
		return RiskMedium
	case score >= 1:
		return RiskLow
	default:
		return RiskSafe
	}
}

// ScoreComponents are the eight weighted factors of a threat score, recorded
// pre-weighting for explainability.
type ScoreComponents struct {
	PatternSeverity   float64 `json:"pattern_severity"`
	ContextType       float64 `json:"context_type"`
	PatternFrequency  float64 `json:"pattern_frequency"`
	PatternPosition   float64 `json:"pattern_position"`
	PatternClustering float64 `json:"pattern_clustering"`
	IntentStrength    float64 `json:"intent_strength"`
	LegitimacyScore   float64 `json:"legitimacy_score"`
	ConfidenceLevel   float64 `json:"confidence_level"`
}

// PatternMatch is one signature occurrence with its context adjustments.
type PatternMatch struct {
	Signature        string            `json:"signature"`
	Category         patterns.Category `json:"category"`
	Pattern          string            `json:"pattern"`
	Position         int               `json:"position"`
	BaseSeverity     int               `json:"base_severity"`
	AdjustedSeverity int               `json:"adjusted_severity"`
	Confidence       float64           `json:"confidence"`
	Coherence        float64           `json:"coherence"`
	Quoted           bool              `json:"quoted"`
	Negated          bool              `json:"negated"`
}

// ContextMetadata is the classifier's view of a text.
type ContextMetadata struct {
	Primary        patterns.ContextType             `json:"primary"`
	Secondary      []patterns.ContextType           `json:"secondary,omitempty"`
	Scores         map[patterns.ContextType]float64 `json:"scores"`
	Declared       patterns.ContextType             `json:"declared,omitempty"`
	MetaDiscussion bool                             `json:"meta_discussion"`
	HasQuotes      bool                             `json:"has_quotes"`
	HasNegation    bool                             `json:"has_negation"`
}

// IntentType classifies the apparent purpose of a text.
type IntentType string

const (
	IntentEducational    IntentType = "educational"
	IntentResearch       IntentType = "research"
	IntentMetaDiscussion IntentType = "meta_discussion"
	IntentMalicious      IntentType = "malicious"
	IntentUnknown        IntentType = "unknown"
)

// IntentAnalysis carries the intent classification and its threat reduction.
type IntentAnalysis struct {
	Type            IntentType `json:"type"`
	Confidence      float64    `json:"confidence"`
	ThreatReduction float64    `json:"threat_reduction"`
	Indicators      []string   `json:"indicators,omitempty"`
}

// LegitimacyAnalysis carries the legitimate-use assessment.
type LegitimacyAnalysis struct {
	Score               float64                      `json:"score"`
	Legitimate          bool                         `json:"legitimate"`
	WhitelistCategories []patterns.WhitelistCategory `json:"whitelist_categories,omitempty"`
	Signals             []string                     `json:"signals,omitempty"`
}

// ThreatScore is the full result of scanning one text.
type ThreatScore struct {
	Score      float64            `json:"score"` // normalized 0-100
	Level      RiskLevel          `json:"level"`
	Raw        float64            `json:"raw"`
	Safe       bool               `json:"safe"` // guard clause short-circuit
	Components ScoreComponents    `json:"components"`
	Matches    []PatternMatch     `json:"matches,omitempty"`
	Context    ContextMetadata    `json:"context"`
	Intent     IntentAnalysis     `json:"intent"`
	Legitimacy LegitimacyAnalysis `json:"legitimacy"`
}

// PatternNames returns the distinct signature names that matched.
func (ts *ThreatScore) PatternNames() []string {
	seen := make(map[string]bool, len(ts.Matches))
	var names []string
	for _, m := range ts.Matches {
		if !seen[m.Signature] {
			seen[m.Signature] = true
			names = append(names, m.Signature)
		}
	}
	return names
}

// DetectedChain is a matched attack-chain template in a session.
type DetectedChain struct {
	Template       string   `json:"template"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	Confidence     float64  `json:"confidence"`
	MatchedStages  []string `json:"matched_stages"`
	Coverage       float64  `json:"coverage"`
	DetectedAtTurn int      `json:"detected_at_turn"`
}

// ConstraintViolation is one erosion-family hit on one turn.
type ConstraintViolation struct {
	Turn           int      `json:"turn"`
	Family         string   `json:"family"`
	Boundary       string   `json:"boundary"`
	Severity       string   `json:"severity"` // minor | moderate | severe
	SeverityWeight float64  `json:"severity_weight"`
	Multiplier     float64  `json:"multiplier"`
	Confidence     float64  `json:"confidence"`
	Indicators     []string `json:"indicators,omitempty"`
}

// SafetyBoundary tracks one boundary's degradation over a session.
// Threshold starts at 1.0 and only decreases.
type SafetyBoundary struct {
	Name             string  `json:"name"`
	Threshold        float64 `json:"threshold"`
	Violations       int     `json:"violations"`
	LastViolatedTurn int     `json:"last_violated_turn,omitempty"`
}

// ErosionAnalysis is the constraint-erosion view of a session.
type ErosionAnalysis struct {
	Score             float64               `json:"score"` // session erosion 0-100
	Risk              float64               `json:"risk"`  // blended risk 0-100
	Level             RiskLevel             `json:"level"`
	Velocity          float64               `json:"velocity"`
	IntegrityScore    float64               `json:"integrity_score"`
	ManipulationIndex float64               `json:"manipulation_index"`
	PersistenceScore  float64               `json:"persistence_score"`
	Boundaries        []SafetyBoundary      `json:"boundaries"`
	Violations        []ConstraintViolation `json:"violations,omitempty"`
	CriticalPoints    []int                 `json:"critical_points,omitempty"`
	Timeline          []float64             `json:"timeline,omitempty"` // per-turn erosion scores
}

// ConversationAnalysis is the full session assessment.
type ConversationAnalysis struct {
	SessionID          string           `json:"session_id"`
	Active             bool             `json:"active"`
	TurnCount          int              `json:"turn_count"`
	StartTime          time.Time        `json:"start_time"`
	LastActivity       time.Time        `json:"last_activity"`
	CumulativeRisk     float64          `json:"cumulative_risk"`
	FinalRisk          float64          `json:"final_risk"`
	Level              RiskLevel        `json:"level"`
	EscalationDetected bool             `json:"escalation_detected"`
	PivotPoints        []int            `json:"pivot_points,omitempty"`
	Chains             []DetectedChain  `json:"chains,omitempty"`
	Erosion            *ErosionAnalysis `json:"erosion,omitempty"`
	AvgTurnInterval    float64          `json:"avg_turn_interval_seconds"`
	RapidFire          bool             `json:"rapid_fire"`
	HighestRiskTurn    int              `json:"highest_risk_turn"`
	HighestRiskScore   float64          `json:"highest_risk_score"`
}

// TurnResult is returned by addTurn: the per-turn score plus the session
// signals it moved.
type TurnResult struct {
	SessionID          string          `json:"session_id"`
	TurnNumber         int             `json:"turn_number"`
	Score              *ThreatScore    `json:"score"`
	CumulativeRisk     float64         `json:"cumulative_risk"`
	EscalationDetected bool            `json:"escalation_detected"`
	NewChains          []DetectedChain `json:"new_chains,omitempty"`
	TurnErosion        float64         `json:"turn_erosion"`
	ErosionScore       float64         `json:"erosion_score"`
	CriticalPoint      bool            `json:"critical_point"`
}
