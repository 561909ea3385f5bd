package scan

import (
	"strings"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// Intent classification runs ordered checks: benign framings are recognized
// before malicious keywords, so a lesson that names an attack keeps its
// educational intent.

var educationalIntentWords = []string{
	"example", "demonstrate", "explain", "teach", "learn", "educational",
	"tutorial",
}

var researchIntentWords = []string{
	"research", "study", "analysis", "academic",
}

var maliciousIntentWords = []string{
	"hack", "exploit", "bypass", "circumvent", "break", "override",
	"ignore", "disable",
}

// classifyIntent derives intent from normalized text and its context.
func classifyIntent(text string, ctx ContextMetadata) IntentAnalysis {
	eduHits := containsAll(text, educationalIntentWords)
	if len(eduHits) >= 2 || ctx.Primary == patterns.ContextEducational {
		return IntentAnalysis{
			Type:            IntentEducational,
			Confidence:      0.8,
			ThreatReduction: 0.7,
			Indicators:      eduHits,
		}
	}

	if resHits := containsAll(text, researchIntentWords); ctx.Primary == patterns.ContextResearch || len(resHits) > 0 {
		return IntentAnalysis{
			Type:            IntentResearch,
			Confidence:      0.75,
			ThreatReduction: 0.6,
			Indicators:      resHits,
		}
	}

	if ctx.MetaDiscussion {
		return IntentAnalysis{
			Type:            IntentMetaDiscussion,
			Confidence:      0.65,
			ThreatReduction: 0.6,
		}
	}

	if malHits := containsAll(text, maliciousIntentWords); len(malHits) > 0 {
		return IntentAnalysis{
			Type:            IntentMalicious,
			Confidence:      0.8,
			ThreatReduction: 0.0,
			Indicators:      malHits,
		}
	}

	return IntentAnalysis{
		Type:            IntentUnknown,
		Confidence:      0.5,
		ThreatReduction: 0.2,
	}
}

func containsAll(text string, words []string) []string {
	var hits []string
	for _, w := range words {
		if strings.Contains(text, w) {
			hits = append(hits, w)
		}
	}
	return hits
}
