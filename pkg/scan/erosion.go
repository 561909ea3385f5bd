package scan

import (
	"strings"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// CONSTRAINT-EROSION DETECTION
// ============================================================================
// Tracks gradual boundary wear across a session: which erosion families fire
// per turn, how far each safety boundary has degraded, and a decay-weighted
// session score where older violations fade. The decayed sum is maintained
// incrementally: one multiply and add per violation, identical in value to
// recomputing the full decay series.

// Violation severity tiers and their weights.
const (
	severityMinor    = "minor"
	severityModerate = "moderate"
	severitySevere   = "severe"

	weightMinor    = 1.0
	weightModerate = 2.5
	weightSevere   = 5.0
)

// Tier thresholds against the turn's threat score.
const (
	severeThreshold   = 60
	moderateThreshold = 30
)

const (
	violationDecay    = 0.85
	boundaryWearRate  = 0.05
	sessionScoreScale = 5.0

	// tier escalation applies for strong families late in a session
	escalateMultiplier = 1.2
	escalateAfterTurn  = 5
)

// ErosionDetector accumulates erosion state for one session.
type ErosionDetector struct {
	families   []*patterns.ErosionFamily
	boundaries map[string]*SafetyBoundary

	violations     []ConstraintViolation
	timeline       []float64 // per-turn erosion scores
	decayedSum     float64
	criticalPoints []int
	violationTurns map[int]bool
}

// NewErosionDetector builds a fresh detector with all boundaries intact.
func NewErosionDetector(catalog *patterns.Catalog) *ErosionDetector {
	d := &ErosionDetector{
		families:       catalog.ErosionFamilies(),
		boundaries:     make(map[string]*SafetyBoundary, len(patterns.BoundaryNames)),
		violationTurns: make(map[int]bool),
	}
	for _, name := range patterns.BoundaryNames {
		d.boundaries[name] = &SafetyBoundary{Name: name, Threshold: 1.0}
	}
	return d
}

// ObserveTurn evaluates one turn's normalized prompt. threatScore is the
// turn's scan score, which sets violation severity. Returns the turn's
// erosion score and whether this turn is a critical point.
func (d *ErosionDetector) ObserveTurn(turnNumber int, prompt string, threatScore float64) (float64, bool) {
	var turnScore float64

	for _, family := range d.families {
		matched := matchIndicators(prompt, family.Indicators)
		if len(matched) == 0 {
			continue
		}

		severity, weight := severityForScore(threatScore)
		if family.SeverityMultiplier > escalateMultiplier && turnNumber > escalateAfterTurn {
			severity, weight = escalateTier(severity)
		}

		confidence := float64(len(matched)) / float64(len(family.Indicators))
		if len(matched) > 1 {
			confidence *= 1.2
		}
		if confidence > 1.0 {
			confidence = 1.0
		}

		d.violations = append(d.violations, ConstraintViolation{
			Turn:           turnNumber,
			Family:         family.Name,
			Boundary:       family.Boundary,
			Severity:       severity,
			SeverityWeight: weight,
			Multiplier:     family.SeverityMultiplier,
			Confidence:     confidence,
			Indicators:     matched,
		})
		d.violationTurns[turnNumber] = true

		b := d.boundaries[family.Boundary]
		b.Threshold -= weight * boundaryWearRate
		if b.Threshold < 0 {
			b.Threshold = 0
		}
		b.Violations++
		b.LastViolatedTurn = turnNumber

		// incremental decay: older violations fade at each new one
		d.decayedSum = d.decayedSum*violationDecay + weight

		turnScore += weight * family.SeverityMultiplier * confidence
	}

	turnScore *= 10
	if turnScore > 100 {
		turnScore = 100
	}

	critical := d.isCriticalPoint(turnScore)
	d.timeline = append(d.timeline, turnScore)
	if critical {
		d.criticalPoints = append(d.criticalPoints, turnNumber)
	}
	return turnScore, critical
}

// isCriticalPoint flags turns where erosion jumps or boundaries collapse.
func (d *ErosionDetector) isCriticalPoint(turnScore float64) bool {
	if turnScore >= 50 {
		return true
	}
	if n := len(d.timeline); n > 0 {
		prev := d.timeline[n-1]
		if turnScore > 2*prev && turnScore > 20 {
			return true
		}
	}
	collapsed := 0
	for _, b := range d.boundaries {
		if b.Threshold < 0.5 {
			collapsed++
		}
	}
	return collapsed >= 2
}

// SessionScore is the decay-weighted erosion score, 0-100.
func (d *ErosionDetector) SessionScore() float64 {
	s := d.decayedSum * sessionScoreScale
	if s > 100 {
		s = 100
	}
	return s
}

// Analysis assembles the erosion view of the session.
func (d *ErosionDetector) Analysis(turnCount int) *ErosionAnalysis {
	a := &ErosionAnalysis{
		Score:          d.SessionScore(),
		Violations:     d.violations,
		CriticalPoints: d.criticalPoints,
		Timeline:       d.timeline,
	}

	if n := len(d.timeline); n >= 2 {
		a.Velocity = d.timeline[n-1] - d.timeline[n-2]
	}

	var thresholdSum float64
	for _, name := range patterns.BoundaryNames {
		b := d.boundaries[name]
		a.Boundaries = append(a.Boundaries, *b)
		thresholdSum += b.Threshold
	}
	a.IntegrityScore = thresholdSum / float64(len(patterns.BoundaryNames)) * 100

	if len(d.violations) > 0 {
		manip := 0
		for _, v := range d.violations {
			if patterns.ManipulationFamilies[v.Family] {
				manip++
			}
		}
		a.ManipulationIndex = float64(manip) / float64(len(d.violations)) * 100
	}

	if turnCount > 0 {
		a.PersistenceScore = float64(len(d.violationTurns)) / float64(turnCount) * 100
	}

	velocity := a.Velocity
	if velocity < 0 {
		velocity = -velocity
	}
	risk := 0.4*a.Score +
		0.2*velocity +
		0.2*(100-a.IntegrityScore) +
		0.1*a.ManipulationIndex +
		0.1*a.PersistenceScore
	if risk > 100 {
		risk = 100
	}
	a.Risk = risk
	a.Level = RiskLevelForScore(risk)

	return a
}

func matchIndicators(prompt string, indicators []string) []string {
	var matched []string
	for _, ind := range indicators {
		if strings.Contains(prompt, ind) {
			matched = append(matched, ind)
		}
	}
	return matched
}

func severityForScore(threatScore float64) (string, float64) {
	switch {
	case threatScore >= severeThreshold:
		return severitySevere, weightSevere
	case threatScore >= moderateThreshold:
		return severityModerate, weightModerate
	default:
		return severityMinor, weightMinor
	}
}

func escalateTier(severity string) (string, float64) {
	switch severity {
	case severityMinor:
		return severityModerate, weightModerate
	default:
		return severitySevere, weightSevere
	}
}
