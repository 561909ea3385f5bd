// Package report renders scan results and session analyses for terminals
// and docs. JSON output is machine-readable; text and markdown are for
// humans triaging a session.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/HoldfastAI/bastion/pkg/patterns"
	"github.com/HoldfastAI/bastion/pkg/scan"
)

// Format selects the rendering style.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a flag value to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// WriteScore renders a single scan result.
func WriteScore(w io.Writer, result *scan.ThreatScore, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatMarkdown:
		return scoreMarkdown(w, result)
	default:
		return scoreText(w, result)
	}
}

// WriteAnalysis renders a full session analysis.
func WriteAnalysis(w io.Writer, a *scan.ConversationAnalysis, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, a)
	case FormatMarkdown:
		return analysisMarkdown(w, a)
	default:
		return analysisText(w, a)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreText(w io.Writer, r *scan.ThreatScore) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Score:   %.1f (%s)\n", r.Score, r.Level)
	fmt.Fprintf(&b, "Context: %s", r.Context.Primary)
	if len(r.Context.Secondary) > 0 {
		fmt.Fprintf(&b, " (secondary: %s)", joinContexts(r.Context.Secondary))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Intent:  %s (confidence %.2f)\n", r.Intent.Type, r.Intent.Confidence)
	fmt.Fprintf(&b, "Legit:   %.2f", r.Legitimacy.Score)
	if r.Legitimacy.Legitimate {
		b.WriteString(" [legitimate]")
	}
	b.WriteString("\n")
	if r.Safe && len(r.Matches) > 0 {
		b.WriteString("Guard:   legitimate discussion, score suppressed\n")
	}
	if len(r.Matches) > 0 {
		b.WriteString("Matches:\n")
		for _, m := range r.Matches {
			flags := ""
			if m.Quoted {
				flags += " quoted"
			}
			if m.Negated {
				flags += " negated"
			}
			fmt.Fprintf(&b, "  - %s (%s) severity %d->%d at %d%s\n",
				m.Signature, m.Category, m.BaseSeverity, m.AdjustedSeverity, m.Position, flags)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func scoreMarkdown(w io.Writer, r *scan.ThreatScore) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## Scan Result: %s\n\n", r.Level)
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Score | %.1f |\n", r.Score)
	fmt.Fprintf(&b, "| Context | %s |\n", r.Context.Primary)
	fmt.Fprintf(&b, "| Intent | %s |\n", r.Intent.Type)
	fmt.Fprintf(&b, "| Legitimacy | %.2f |\n", r.Legitimacy.Score)
	fmt.Fprintf(&b, "| Matches | %d |\n", len(r.Matches))
	if len(r.Matches) > 0 {
		b.WriteString("\n### Matches\n\n")
		for _, m := range r.Matches {
			fmt.Fprintf(&b, "- **%s** (%s): severity %d adjusted to %d\n",
				m.Signature, m.Category, m.BaseSeverity, m.AdjustedSeverity)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func analysisText(w io.Writer, a *scan.ConversationAnalysis) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", a.SessionID)
	fmt.Fprintf(&b, "Turns: %d  Active: %v\n", a.TurnCount, a.Active)
	fmt.Fprintf(&b, "Cumulative risk: %.1f\n", a.CumulativeRisk)
	fmt.Fprintf(&b, "Final risk:      %.1f (%s)\n", a.FinalRisk, a.Level)
	if a.EscalationDetected {
		fmt.Fprintf(&b, "Escalation detected, pivot turns: %v\n", a.PivotPoints)
	}
	if a.RapidFire {
		b.WriteString("Rapid-fire turn pacing detected\n")
	}
	if a.HighestRiskTurn > 0 {
		fmt.Fprintf(&b, "Highest-risk turn: %d (%.1f)\n", a.HighestRiskTurn, a.HighestRiskScore)
	}
	for _, c := range a.Chains {
		fmt.Fprintf(&b, "Attack chain: %s (%s, confidence %.2f, stages %s)\n",
			c.Template, c.Severity, c.Confidence, strings.Join(c.MatchedStages, " > "))
	}
	if e := a.Erosion; e != nil && len(e.Violations) > 0 {
		fmt.Fprintf(&b, "Constraint erosion: %.1f (risk %.1f, %s)\n", e.Score, e.Risk, e.Level)
		fmt.Fprintf(&b, "  integrity %.1f  manipulation %.1f  persistence %.1f\n",
			e.IntegrityScore, e.ManipulationIndex, e.PersistenceScore)
		for _, bd := range e.Boundaries {
			if bd.Violations > 0 {
				fmt.Fprintf(&b, "  boundary %s: threshold %.2f after %d violations\n",
					bd.Name, bd.Threshold, bd.Violations)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func analysisMarkdown(w io.Writer, a *scan.ConversationAnalysis) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session %s: %s\n\n", a.SessionID, a.Level)
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Turns | %d |\n", a.TurnCount)
	fmt.Fprintf(&b, "| Cumulative risk | %.1f |\n", a.CumulativeRisk)
	fmt.Fprintf(&b, "| Final risk | %.1f |\n", a.FinalRisk)
	fmt.Fprintf(&b, "| Escalation | %v |\n", a.EscalationDetected)
	if e := a.Erosion; e != nil {
		fmt.Fprintf(&b, "| Erosion score | %.1f |\n", e.Score)
		fmt.Fprintf(&b, "| Boundary integrity | %.1f |\n", e.IntegrityScore)
	}
	if len(a.Chains) > 0 {
		b.WriteString("\n### Attack chains\n\n")
		for _, c := range a.Chains {
			fmt.Fprintf(&b, "- **%s** (%s): confidence %.2f\n", c.Template, c.Severity, c.Confidence)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func joinContexts(ctxs []patterns.ContextType) string {
	parts := make([]string, len(ctxs))
	for i, c := range ctxs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
