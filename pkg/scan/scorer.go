package scan

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// WEIGHTED SCORING ENGINE
// ============================================================================
// Eight factors combine into one 0-100 score. Severity is context-adjusted
// per match before any weighting, and a guard clause zeroes out texts that
// read as legitimate discussion with only trace pattern residue.

// Factor weights. Legitimacy is the only negative factor.
const (
	weightSeverity   = 0.30
	weightContext    = 0.20
	weightFrequency  = 0.10
	weightPosition   = 0.05
	weightClustering = 0.10
	weightIntent     = 0.15
	weightLegitimacy = -0.40
	weightConfidence = 0.10
)

const (
	clusteringWindow = 100 // max char distance for a match pair to cluster
	coherenceWindow  = 50  // chars inspected on each side of a match
	minConfidence    = 0.1
)

// contextMultipliers scale the context-type factor by primary context.
var contextMultipliers = map[patterns.ContextType]float64{
	patterns.ContextUserInput:     1.0,
	patterns.ContextLLMResponse:   0.6,
	patterns.ContextEducational:   0.3,
	patterns.ContextResearch:      0.4,
	patterns.ContextCodeBlock:     0.5,
	patterns.ContextDocumentation: 0.4,
	patterns.ContextUnknown:       0.8,
}

const defaultContextMultiplier = 0.8

// Engine scans single texts against an injected catalog.
type Engine struct {
	catalog    *patterns.Catalog
	classifier Classifier
	log        zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds a scoring engine over catalog.
func NewEngine(catalog *patterns.Catalog, opts ...EngineOption) (*Engine, error) {
	if catalog == nil {
		return nil, &ValidationError{Field: "catalog", Reason: "nil"}
	}
	if catalog.SignatureCount() == 0 {
		return nil, &ValidationError{Field: "catalog", Reason: "no signatures"}
	}
	e := &Engine{catalog: catalog, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the engine's detection catalog.
func (e *Engine) Catalog() *patterns.Catalog { return e.catalog }

// Scan scores one text. declared, when set to a known context type, overrides
// the classifier's primary context. Scan never fails on content: empty or
// pattern-free text scores SAFE.
func (e *Engine) Scan(text string, declared patterns.ContextType) *ThreatScore {
	normalized := Normalize(text)

	ctx := e.classifier.Classify(normalized)
	if declared != "" && declared != patterns.ContextUnknown {
		ctx.Declared = declared
		ctx.Primary = declared
	}

	intent := classifyIntent(normalized, ctx)
	legit := assessLegitimacy(normalized, ctx, e.catalog)

	matches := e.collectMatches(normalized, ctx)
	if len(matches) == 0 {
		return &ThreatScore{
			Level:      RiskSafe,
			Context:    ctx,
			Intent:     intent,
			Legitimacy: legit,
		}
	}

	severitySum := 0
	for _, m := range matches {
		severitySum += m.AdjustedSeverity
	}

	// Guard clause: legitimate framing with only trace severity is SAFE.
	benign := patterns.BenignContexts[ctx.Primary]
	if (legit.Legitimate && benign && severitySum <= 5) || (benign && severitySum <= 3) {
		return &ThreatScore{
			Level:      RiskSafe,
			Safe:       true,
			Matches:    matches,
			Context:    ctx,
			Intent:     intent,
			Legitimacy: legit,
		}
	}

	comp := ScoreComponents{
		PatternSeverity:   float64(severitySum),
		ContextType:       float64(severitySum) * contextMultiplier(ctx.Primary),
		PatternFrequency:  frequencyComponent(len(matches)),
		PatternPosition:   positionComponent(matches, len(normalized)),
		PatternClustering: clusteringComponent(matches),
		IntentStrength:    (1 - intent.ThreatReduction) * 20,
		LegitimacyScore:   legit.Score * 30,
		ConfidenceLevel:   avgConfidence(matches) * 15,
	}

	raw := weightSeverity*comp.PatternSeverity +
		weightContext*comp.ContextType +
		weightFrequency*comp.PatternFrequency +
		weightPosition*comp.PatternPosition +
		weightClustering*comp.PatternClustering +
		weightIntent*comp.IntentStrength +
		weightLegitimacy*comp.LegitimacyScore +
		weightConfidence*comp.ConfidenceLevel

	score := raw
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	result := &ThreatScore{
		Score:      score,
		Level:      RiskLevelForScore(score),
		Raw:        raw,
		Components: comp,
		Matches:    matches,
		Context:    ctx,
		Intent:     intent,
		Legitimacy: legit,
	}

	e.log.Debug().
		Float64("score", result.Score).
		Str("level", string(result.Level)).
		Int("matches", len(matches)).
		Str("context", string(ctx.Primary)).
		Msg("scan complete")

	return result
}

// collectMatches runs every signature over the text and applies the
// per-match adjustments: context sensitivity, quoting, negation. Severity
// floors at 1 unless the match is quoted, negated, or in a benign context.
func (e *Engine) collectMatches(text string, ctx ContextMetadata) []PatternMatch {
	var matches []PatternMatch
	for _, sig := range e.catalog.Signatures() {
		for _, hit := range sig.FindAll(text) {
			coherence := semanticCoherence(text, hit.Position, ctx.Primary)
			conf := coherence
			adjusted := sig.Severity

			if mult, ok := sig.ContextSensitivity[ctx.Primary]; ok {
				conf *= mult
				adjusted = int(float64(sig.Severity) * mult)
			}

			quoted := isQuoted(text, hit.Position)
			if quoted {
				conf *= 0.5
				adjusted = int(float64(adjusted) * 0.5)
			}
			negated := isNegated(text, hit.Position)
			if negated {
				conf *= 0.3
				adjusted = int(float64(adjusted) * 0.3)
			}

			if conf < minConfidence {
				conf = minConfidence
			}
			if adjusted < 1 && !quoted && !negated && !patterns.BenignContexts[ctx.Primary] {
				adjusted = 1
			}
			if adjusted < 0 {
				adjusted = 0
			}

			matches = append(matches, PatternMatch{
				Signature:        sig.Name,
				Category:         sig.Category,
				Pattern:          hit.Pattern,
				Position:         hit.Position,
				BaseSeverity:     sig.Severity,
				AdjustedSeverity: adjusted,
				Confidence:       conf,
				Coherence:        coherence,
				Quoted:           quoted,
				Negated:          negated,
			})
		}
	}
	return matches
}

func contextMultiplier(ctx patterns.ContextType) float64 {
	if m, ok := contextMultipliers[ctx]; ok {
		return m
	}
	return defaultContextMultiplier
}

func frequencyComponent(n int) float64 {
	f := float64(n) * 5
	if f > 20 {
		f = 20
	}
	return f
}

// positionComponent rewards matches near the start of the text, where
// injected instructions tend to land.
func positionComponent(matches []PatternMatch, textLen int) float64 {
	if textLen == 0 {
		return 0
	}
	sum := 0
	for _, m := range matches {
		sum += m.Position
	}
	avg := float64(sum) / float64(len(matches))
	p := 20 - (avg/float64(textLen))*20
	if p < 0 {
		p = 0
	}
	return p
}

// clusteringComponent scores pairs of matches within the clustering window.
// Cross-category pairs weigh more: distinct techniques packed together read
// as a composed attack.
func clusteringComponent(matches []PatternMatch) float64 {
	var sum float64
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			d := matches[i].Position - matches[j].Position
			if d < 0 {
				d = -d
			}
			if d > clusteringWindow {
				continue
			}
			proximity := 1 - float64(d)/clusteringWindow
			if matches[i].Category != matches[j].Category {
				proximity *= 1.5
			}
			sum += proximity
		}
	}
	c := sum * 5
	if c > 20 {
		c = 20
	}
	return c
}

func avgConfidence(matches []PatternMatch) float64 {
	var sum float64
	for _, m := range matches {
		sum += m.Confidence
	}
	return sum / float64(len(matches))
}

// Coherence term tables: what a match's surroundings should mention for the
// claimed context to be plausible.
var (
	securityTerms = []string{"security", "vulnerability", "attack", "threat"}
	codeTerms     = []string{"function", "class", "import", "def"}
	docTerms      = []string{"policy", "procedure", "guideline"}
)

// semanticCoherence checks whether the text around a match supports the
// primary context. A match inside genuine training material sits near
// security vocabulary; one inside real code sits near code vocabulary.
func semanticCoherence(text string, position int, ctx patterns.ContextType) float64 {
	start := position - coherenceWindow
	if start < 0 {
		start = 0
	}
	end := position + coherenceWindow
	if end > len(text) {
		end = len(text)
	}
	window := text[start:end]

	switch ctx {
	case patterns.ContextEducational, patterns.ContextResearch:
		if containsAny(window, securityTerms) {
			return 0.9
		}
	case patterns.ContextCodeBlock:
		if containsAny(window, codeTerms) {
			return 0.8
		}
	case patterns.ContextDocumentation:
		if containsAny(window, docTerms) {
			return 0.85
		}
	}
	return 0.5
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
