package patterns

// ============================================================================
// WHITELIST AND LEGITIMATE-CONTEXT TABLES
// ============================================================================
// Whitelist categories raise the legitimacy score when their regexes match.
// Each matching category contributes independently, so a text that reads like
// security training AND documentation earns credit for both.

func builtinWhitelist() map[WhitelistCategory][]string {
	return map[WhitelistCategory][]string{
		WhitelistSecurityEducation: {
			`(?i)(?:security|vulnerability)\s+(?:training|education|awareness|course)`,
			`(?i)(?:teach|teaching|learn|learning)\s+(?:about\s+)?(?:prompt\s+injection|jailbreak|security)`,
			`(?i)(?:example|demonstration)\s+of\s+(?:an?\s+)?(?:attack|exploit|injection)`,
			`(?i)how\s+(?:attackers|adversaries)\s+(?:use|craft|abuse)`,
		},
		WhitelistAcademicResearch: {
			`(?i)(?:academic|research)\s+(?:paper|study|purposes?|context)`,
			`(?i)(?:thesis|dissertation|peer[\s-]reviewed)`,
			`(?i)security\s+research`,
			`(?i)responsible\s+disclosure`,
		},
		WhitelistDocumentation: {
			`(?i)(?:api|user|developer|security)\s+(?:reference|guide|documentation)`,
			`(?i)(?:threat\s+model|risk\s+assessment|security\s+policy)`,
			`(?i)best\s+practices`,
		},
		WhitelistMetaDiscussion: {
			`(?i)(?:discuss|discussing|talk|talking|write|writing)\s+about\s+(?:prompt\s+injection|jailbreaks?|attacks?)`,
			`(?i)(?:detect|detecting|prevent|preventing|mitigat\w+|defend\w*)\s+(?:against\s+)?(?:prompt\s+injection|jailbreaks?|attacks?)`,
			`(?i)(?:attack\s+vector|threat\s+pattern|defense\s+mechanism|mitigation\s+strategy)`,
		},
		WhitelistTestingDemo: {
			`(?i)(?:test|demo)\w*\s+(?:case|scenario|environment|purposes?)`,
			`(?i)(?:penetration|pen)\s+test`,
			`(?i)red\s+team`,
		},
		WhitelistCodeExample: {
			"```",
			`(?i)code\s+(?:example|snippet|sample)`,
			`(?:def|func|function|class)\s+\w+\s*\(`,
		},
	}
}

// builtinLegitimateContext lists framing phrases that mark a benign setting
// regardless of which whitelist category applies.
func builtinLegitimateContext() []string {
	return []string{
		`(?i)for\s+(?:educational|learning|training)\s+purposes`,
		`(?i)in\s+(?:this|the)\s+(?:tutorial|course|lesson|workshop)`,
		`(?i)(?:hypothetical|fictional)\s+(?:scenario|example|situation)`,
		`(?i)security\s+(?:awareness|training)`,
		`(?i)(?:explain|understand)\w*\s+how`,
		`(?i)let\s+me\s+explain`,
		`(?i)for\s+(?:example|instance)`,
	}
}
