package scan

import (
	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// Legitimacy scoring: whitelist hits and benign contexts accumulate into a
// 0-1 score whose weight in the final combination is negative. A score of
// 0.6 or more marks the text legitimate and arms the SAFE guard clause.

const legitimateThreshold = 0.6

func assessLegitimacy(text string, ctx ContextMetadata, catalog *patterns.Catalog) LegitimacyAnalysis {
	var score float64
	var signals []string

	cats := catalog.WhitelistCategories(text)
	for _, cat := range cats {
		score += 0.3
		signals = append(signals, "whitelist:"+string(cat))
	}

	if hits := catalog.LegitimateContextHits(text); hits > 0 {
		score += 0.2 * float64(hits)
		signals = append(signals, "legitimate_framing")
	}

	switch ctx.Primary {
	case patterns.ContextEducational, patterns.ContextResearch:
		score += 0.4
		signals = append(signals, "benign_context:"+string(ctx.Primary))
	case patterns.ContextDocumentation:
		score += 0.3
		signals = append(signals, "benign_context:documentation")
	case patterns.ContextCodeBlock:
		score += 0.2
		signals = append(signals, "benign_context:code_block")
	}

	if ctx.MetaDiscussion {
		score += 0.3
		signals = append(signals, "meta_discussion")
	}

	if score > 1.0 {
		score = 1.0
	}

	return LegitimacyAnalysis{
		Score:               score,
		Legitimate:          score >= legitimateThreshold,
		WhitelistCategories: cats,
		Signals:             signals,
	}
}
