package scan

import (
	"strings"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// ATTACK-CHAIN DETECTION
// ============================================================================
// Templates describe multi-turn attack shapes as keyword stages with minimum
// per-turn risk. A template fires once per session when enough of its stages
// have been satisfied by some turn.

// ChainOrderPolicy controls whether stages must be satisfied in order.
type ChainOrderPolicy int

const (
	// ChainOrderAny accepts stages satisfied by any turns, in any order.
	ChainOrderAny ChainOrderPolicy = iota
	// ChainOrderStrict requires the satisfying turns to be strictly
	// increasing across stages.
	ChainOrderStrict
)

// stageCoverage is the fraction of a template's stages that must match.
const stageCoverage = 0.7

// ChainDetector evaluates chain templates against a session's turns.
type ChainDetector struct {
	templates []*patterns.ChainTemplate
	detected  map[string]DetectedChain
	order     []string // detection order, for stable output
	orderPol  ChainOrderPolicy
}

// NewChainDetector builds a detector over the catalog's templates.
func NewChainDetector(catalog *patterns.Catalog) *ChainDetector {
	return &ChainDetector{
		templates: catalog.Chains(),
		detected:  make(map[string]DetectedChain),
	}
}

// Observe re-evaluates all undetected templates after a new turn and returns
// the templates that fired on this evaluation.
func (d *ChainDetector) Observe(turns []Turn, escalation bool) []DetectedChain {
	var fired []DetectedChain
	for _, tmpl := range d.templates {
		if _, done := d.detected[tmpl.Name]; done {
			continue
		}
		if len(turns) < tmpl.MinTurns {
			continue
		}
		chain, ok := d.evaluate(tmpl, turns, escalation)
		if !ok {
			continue
		}
		d.detected[tmpl.Name] = chain
		d.order = append(d.order, tmpl.Name)
		fired = append(fired, chain)
	}
	return fired
}

// evaluate checks one template against the full turn history.
func (d *ChainDetector) evaluate(tmpl *patterns.ChainTemplate, turns []Turn, escalation bool) (DetectedChain, bool) {
	var matchedStages []string
	lastTurn := -1
	for _, stage := range tmpl.Stages {
		turnIdx := d.findStageTurn(stage, turns, lastTurn)
		if turnIdx < 0 {
			continue
		}
		matchedStages = append(matchedStages, stage.Name)
		if d.orderPol == ChainOrderStrict {
			lastTurn = turnIdx
		}
	}

	coverage := float64(len(matchedStages)) / float64(len(tmpl.Stages))
	if coverage < stageCoverage {
		return DetectedChain{}, false
	}

	confidence := 0.5 + 0.3*indicatorCoverage(tmpl.Indicators, turns)
	if escalation {
		confidence += 0.2
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return DetectedChain{
		Template:       tmpl.Name,
		Description:    tmpl.Description,
		Severity:       tmpl.Severity,
		Confidence:     confidence,
		MatchedStages:  matchedStages,
		Coverage:       coverage,
		DetectedAtTurn: len(turns),
	}, true
}

// findStageTurn returns the index of the first turn satisfying the stage, or
// -1. Under strict ordering only turns after the previous stage's turn count.
func (d *ChainDetector) findStageTurn(stage patterns.ChainStage, turns []Turn, after int) int {
	for i, turn := range turns {
		if d.orderPol == ChainOrderStrict && i <= after {
			continue
		}
		if turn.Score.Score < stage.MinRiskScore {
			continue
		}
		prompt := strings.ToLower(turn.Prompt)
		for _, kw := range stage.Keywords {
			if strings.Contains(prompt, kw) {
				return i
			}
		}
	}
	return -1
}

// indicatorCoverage is the fraction of template indicators that appear in
// any turn prompt.
func indicatorCoverage(indicators []string, turns []Turn) float64 {
	if len(indicators) == 0 {
		return 0
	}
	found := 0
	for _, ind := range indicators {
		for _, turn := range turns {
			if strings.Contains(strings.ToLower(turn.Prompt), ind) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(indicators))
}

// Detected returns every fired chain in detection order.
func (d *ChainDetector) Detected() []DetectedChain {
	out := make([]DetectedChain, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.detected[name])
	}
	return out
}
