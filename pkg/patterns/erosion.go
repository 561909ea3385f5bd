package patterns

// ============================================================================
// CONSTRAINT-EROSION FAMILIES
// ============================================================================
// Each family names the safety boundary it wears down. Multipliers scale the
// violation's contribution to the per-turn erosion score; a multiplier above
// 1.2 also escalates the severity tier late in a session.

// Safety boundary names tracked per session.
const (
	BoundaryContentAppropriateness = "content_appropriateness"
	BoundaryTopicConsistency       = "topic_consistency"
	BoundaryAuthorityClaims        = "authority_claims"
	BoundaryManipulationResistance = "manipulation_resistance"
	BoundaryInformationDisclosure  = "information_disclosure"
)

// BoundaryNames lists every tracked boundary in presentation order.
var BoundaryNames = []string{
	BoundaryContentAppropriateness,
	BoundaryTopicConsistency,
	BoundaryAuthorityClaims,
	BoundaryManipulationResistance,
	BoundaryInformationDisclosure,
}

// ManipulationFamilies marks the families counted by the manipulation index.
var ManipulationFamilies = map[string]bool{
	"emotional_manipulation":   true,
	"normalization":            true,
	"desensitization":          true,
	"false_consensus":          true,
	"reciprocity_exploitation": true,
}

func builtinErosionFamilies() []*ErosionFamily {
	return []*ErosionFamily{
		{
			Name:        "incremental_boundary_pushing",
			Description: "Small repeated asks that each move the line a little",
			Indicators: []string{
				"slightly more", "just a bit", "little more", "push further",
				"go deeper", "expand on", "more detail", "continue with",
				"ignore previous", "bypass all", "override your",
			},
			SeverityMultiplier: 1.2,
			Boundary:           BoundaryContentAppropriateness,
		},
		{
			Name:        "topic_drift",
			Description: "Sideways topic moves that relocate the conversation",
			Indicators: []string{
				"speaking of", "that reminds me", "related to that",
				"on a similar note", "while we're discussing", "by the way",
			},
			SeverityMultiplier: 1.1,
			Boundary:           BoundaryTopicConsistency,
		},
		{
			Name:        "authority_escalation",
			Description: "Claimed credentials or permissions introduced mid-session",
			Indicators: []string{
				"actually i'm", "i should mention", "i have clearance",
				"authorized to", "permission from", "approved by",
				"my role allows", "special access", "clearance",
			},
			SeverityMultiplier: 1.4,
			Boundary:           BoundaryAuthorityClaims,
		},
		{
			Name:        "emotional_manipulation",
			Description: "Intimacy and pressure framing to lower resistance",
			Indicators: []string{
				"trust me", "between us", "i understand you", "we've built",
				"our conversation", "you can tell me", "i care about",
				"help me understand", "urgent", "urgency",
			},
			SeverityMultiplier: 1.3,
			Boundary:           BoundaryManipulationResistance,
		},
		{
			Name:        "normalization",
			Description: "Casting the ask as ordinary and widely accepted",
			Indicators: []string{
				"it's normal", "everyone does", "common practice",
				"standard procedure", "typically", "usually", "it's okay to",
				"nothing wrong with",
			},
			SeverityMultiplier: 1.25,
			Boundary:           BoundaryContentAppropriateness,
		},
		{
			Name:        "desensitization",
			Description: "Leaning on earlier turns to make repeats feel settled",
			Indicators: []string{
				"as we discussed", "like before", "similar to earlier",
				"remember when", "going back to", "as mentioned",
				"previously we", "earlier you",
			},
			SeverityMultiplier: 1.15,
			Boundary:           BoundaryManipulationResistance,
		},
		{
			Name:        "false_consensus",
			Description: "Invented majority opinion used as leverage",
			Indicators: []string{
				"others have", "many people", "it's accepted", "widely known",
				"commonly understood", "general consensus", "most would agree",
				"it's acknowledged",
			},
			SeverityMultiplier: 1.2,
			Boundary:           BoundaryManipulationResistance,
		},
		{
			Name:        "reciprocity_exploitation",
			Description: "Framing compliance as owed repayment",
			Indicators: []string{
				"since i helped", "i've been", "fair exchange", "in return",
				"quid pro quo", "you owe", "reciprocate", "mutual benefit",
			},
			SeverityMultiplier: 1.35,
			Boundary:           BoundaryManipulationResistance,
		},
	}
}
