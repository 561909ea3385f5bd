package patterns

// ============================================================================
// ATTACK-CHAIN TEMPLATES
// ============================================================================
// Multi-turn attack shapes. A stage matches when a turn's prompt contains one
// of its keywords AND the turn's threat score meets the stage minimum. A
// template fires once per session when at least 70% of its stages have
// matched.

func builtinChainTemplates() []*ChainTemplate {
	return []*ChainTemplate{
		{
			Name:        "gradual_escalation",
			Description: "Innocent opening that ratchets toward a direct attempt",
			Stages: []ChainStage{
				{Name: "innocent_start", Keywords: []string{"help me", "curious", "wondering", "quick question"}, MinRiskScore: 0},
				{Name: "probing", Keywords: []string{"what if", "suppose", "hypothetically", "imagine"}, MinRiskScore: 10},
				{Name: "pushing", Keywords: []string{"but what about", "edge case", "exception", "special case"}, MinRiskScore: 25},
				{Name: "direct_attempt", Keywords: []string{"ignore", "bypass", "override", "pretend"}, MinRiskScore: 40},
			},
			Indicators: []string{"hypothetically", "what if", "but surely", "just this once"},
			MinTurns:   3,
			Severity:   "HIGH",
		},
		{
			Name:        "context_building",
			Description: "Fictional frame constructed over turns, then exploited",
			Stages: []ChainStage{
				{Name: "establish_premise", Keywords: []string{"let's say", "assume", "in this scenario", "imagine a world"}, MinRiskScore: 5},
				{Name: "build_fiction", Keywords: []string{"in this world", "the character", "the story", "continuing the scenario"}, MinRiskScore: 15},
				{Name: "exploit_fiction", Keywords: []string{"the character would", "in this story", "so it would say"}, MinRiskScore: 35},
			},
			Indicators: []string{"let's say", "in this world", "the character would"},
			MinTurns:   3,
			Severity:   "MEDIUM",
		},
		{
			Name:        "trust_exploitation",
			Description: "Rapport building cashed in for rule exceptions",
			Stages: []ChainStage{
				{Name: "build_rapport", Keywords: []string{"thank you", "great answer", "you're so helpful", "appreciate"}, MinRiskScore: 0},
				{Name: "personalize", Keywords: []string{"between us", "i trust you", "my friend", "you understand me"}, MinRiskScore: 10},
				{Name: "exploit_trust", Keywords: []string{"since we're friends", "you can tell me", "just for me", "make an exception"}, MinRiskScore: 30},
			},
			Indicators: []string{"between us", "just for me", "make an exception"},
			MinTurns:   3,
			Severity:   "HIGH",
		},
		{
			Name:        "constraint_erosion",
			Description: "Boundary testing that escalates to demands for full bypass",
			Stages: []ChainStage{
				{Name: "test_boundary", Keywords: []string{"can you", "are you able", "is it possible", "are you allowed"}, MinRiskScore: 5},
				{Name: "push_boundary", Keywords: []string{"just a little", "slightly more", "bend the rules", "push further"}, MinRiskScore: 20},
				{Name: "break_boundary", Keywords: []string{"forget the rules", "no restrictions", "bypass all"}, MinRiskScore: 45},
			},
			Indicators: []string{"just a little", "bend the rules", "bypass all"},
			MinTurns:   3,
			Severity:   "HIGH",
		},
		{
			Name:        "role_play_escalation",
			Description: "Persona introduced, deepened, then used to launder requests",
			Stages: []ChainStage{
				{Name: "introduce_role", Keywords: []string{"role play", "roleplay", "pretend to be", "act as", "imagine you are"}, MinRiskScore: 10},
				{Name: "deepen_role", Keywords: []string{"stay in character", "your character", "as this role", "don't break character"}, MinRiskScore: 20},
				{Name: "exploit_role", Keywords: []string{"your character would", "in character, say", "the role requires"}, MinRiskScore: 40},
			},
			Indicators: []string{"stay in character", "your character would"},
			MinTurns:   3,
			Severity:   "HIGH",
		},
		{
			Name:        "information_extraction",
			Description: "General questions narrowing toward internals",
			Stages: []ChainStage{
				{Name: "general_inquiry", Keywords: []string{"how does", "what is", "tell me about"}, MinRiskScore: 0},
				{Name: "specific_probing", Keywords: []string{"what exactly", "specifically how", "details about", "word for word"}, MinRiskScore: 15},
				{Name: "sensitive_extraction", Keywords: []string{"system prompt", "your instructions", "internal", "configuration"}, MinRiskScore: 35},
			},
			Indicators: []string{"word for word", "system prompt", "your instructions"},
			MinTurns:   3,
			Severity:   "MEDIUM",
		},
		{
			Name:        "confusion_attack",
			Description: "Contradiction stacking to extract inconsistent concessions",
			Stages: []ChainStage{
				{Name: "add_complexity", Keywords: []string{"multiple questions", "also", "and another thing", "at the same time"}, MinRiskScore: 5},
				{Name: "introduce_contradiction", Keywords: []string{"but you said", "earlier you", "that contradicts"}, MinRiskScore: 15},
				{Name: "exploit_confusion", Keywords: []string{"so you agree", "as you confirmed", "therefore you can"}, MinRiskScore: 30},
			},
			Indicators: []string{"but you said", "so you agree", "therefore you can"},
			MinTurns:   3,
			Severity:   "MEDIUM",
		},
		{
			Name:        "social_engineering",
			Description: "Authority plus urgency plus demand",
			Stages: []ChainStage{
				{Name: "claim_authority", Keywords: []string{"i'm the developer", "i work for", "administrator", "clearance"}, MinRiskScore: 10},
				{Name: "create_urgency", Keywords: []string{"urgent", "emergency", "right now", "immediately"}, MinRiskScore: 15},
				{Name: "demand_compliance", Keywords: []string{"you must", "required to", "comply", "no choice"}, MinRiskScore: 35},
			},
			Indicators: []string{"urgent", "clearance", "you must"},
			MinTurns:   3,
			Severity:   "HIGH",
		},
	}
}
