package scan

import (
	"regexp"
	"strings"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// CONTEXT CLASSIFICATION
// ============================================================================
// Lightweight marker counting decides whether a text reads as educational
// material, research, code, documentation, or a raw conversation. The primary
// context drives severity discounts in the scorer, so classification stays
// deliberately conservative: user_input wins unless markers clearly outvote
// its baseline.

var educationalMarkers = []string{
	"example:", "for instance", "tutorial", "lesson", "learn", "understand",
	"explain", "demonstrate", "teaching", "educational", "academic",
	"let me explain", "this shows", "to illustrate", "for learning",
}

var researchMarkers = []string{
	"research", "analysis", "study", "investigate", "vulnerability",
	"security testing", "penetration test", "ethical hacking", "bug bounty",
	"responsible disclosure", "academic paper", "thesis", "dissertation",
}

var codeMarkers = []string{
	"```", "def ", "function", "class ", "import ", "const ", "var ",
	"let ", "return ", "if (", "print(", "console.log", "#!/", "<?php",
}

var conversationMarkers = []string{
	"you:", "user:", "assistant:", "ai:", "bot:", "human:", "system:",
	">>", "<<", "q:", "a:", "me:", "chatbot:", "gpt:",
}

var documentationMarkers = []string{
	"documentation", "api reference", "user guide", "developer guide",
	"security guide", "best practices", "threat model", "risk assessment",
	"security policy",
}

var metaDiscussionMarkers = []string{
	"prompt injection", "jailbreak technique", "security vulnerability",
	"attack vector", "threat pattern", "security measure",
	"defense mechanism", "mitigation strategy", "discussing about",
	"talking about", "analyzing the", "explaining how",
}

var discussionVerbs = []string{
	"discussing", "talking about", "explaining", "describing", "analyzing",
	"studying", "learning about", "understanding",
}

var negationWords = []string{
	"not", "don't", "doesn't", "won't", "can't", "shouldn't", "never", "no",
	"without", "avoid", "prevent", "stop",
}

var quoteSpanRes = []*regexp.Regexp{
	regexp.MustCompile(`"[^"]*"`),
	regexp.MustCompile(`'[^']*'`),
	regexp.MustCompile("`[^`]*`"),
	regexp.MustCompile(`>[^<]*<`),
}

// negationLookbackRe matches a trailing negation immediately before a match.
var negationLookbackRe = regexp.MustCompile(
	`\b(?:not|don't|doesn't|won't|can't|shouldn't|never|avoid|prevent|without)\s+\w*\s*$`)

// markerWeights scale raw marker counts per context type.
var markerWeights = map[patterns.ContextType]float64{
	patterns.ContextEducational:   0.3,
	patterns.ContextResearch:      0.35,
	patterns.ContextCodeBlock:     0.4,
	patterns.ContextConversation:  0.25,
	patterns.ContextDocumentation: 0.3,
}

// classifyOrder fixes argmax tie-breaking.
var classifyOrder = []patterns.ContextType{
	patterns.ContextEducational,
	patterns.ContextResearch,
	patterns.ContextCodeBlock,
	patterns.ContextDocumentation,
	patterns.ContextConversation,
}

// Classifier derives ContextMetadata from normalized text.
type Classifier struct{}

// Classify scores every context type and picks primary/secondary contexts.
// Text must already be normalized (lowercased).
func (Classifier) Classify(text string) ContextMetadata {
	scores := map[patterns.ContextType]float64{
		patterns.ContextEducational:   markerScore(text, educationalMarkers, markerWeights[patterns.ContextEducational]),
		patterns.ContextResearch:      markerScore(text, researchMarkers, markerWeights[patterns.ContextResearch]),
		patterns.ContextCodeBlock:     markerScore(text, codeMarkers, markerWeights[patterns.ContextCodeBlock]),
		patterns.ContextConversation:  markerScore(text, conversationMarkers, markerWeights[patterns.ContextConversation]),
		patterns.ContextDocumentation: markerScore(text, documentationMarkers, markerWeights[patterns.ContextDocumentation]),
		patterns.ContextUserInput:     0.5,
		patterns.ContextLLMResponse:   0.3,
		patterns.ContextUnknown:       0.1,
	}

	primary := patterns.ContextUserInput
	best := scores[patterns.ContextUserInput]
	for _, ctx := range classifyOrder {
		if scores[ctx] > best {
			best = scores[ctx]
			primary = ctx
		}
	}
	if best < 0.3 {
		primary = patterns.ContextUnknown
	}

	var secondary []patterns.ContextType
	for _, ctx := range classifyOrder {
		if ctx != primary && scores[ctx] >= 0.4 {
			secondary = append(secondary, ctx)
		}
	}

	return ContextMetadata{
		Primary:        primary,
		Secondary:      secondary,
		Scores:         scores,
		MetaDiscussion: isMetaDiscussion(text),
		HasQuotes:      hasQuotes(text),
		HasNegation:    hasNegation(text),
	}
}

func markerScore(text string, markers []string, weight float64) float64 {
	count := 0
	for _, m := range markers {
		if strings.Contains(text, m) {
			count++
		}
	}
	score := float64(count) * weight
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// isMetaDiscussion detects text that talks ABOUT attacks rather than
// performing one: a single explicit meta marker, or two discussion verbs.
func isMetaDiscussion(text string) bool {
	for _, m := range metaDiscussionMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	verbs := 0
	for _, v := range discussionVerbs {
		if strings.Contains(text, v) {
			verbs++
		}
	}
	return verbs >= 2
}

func hasQuotes(text string) bool {
	for _, re := range quoteSpanRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func hasNegation(text string) bool {
	for _, w := range negationWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// isQuoted reports whether the match at position sits inside a quote span:
// an odd number of quote characters in the 50 chars on each side.
func isQuoted(text string, position int) bool {
	start := position - 50
	if start < 0 {
		start = 0
	}
	end := position + 50
	if end > len(text) {
		end = len(text)
	}
	before := countQuoteChars(text[start:position])
	after := countQuoteChars(text[position:end])
	return before%2 == 1 && after%2 == 1
}

func countQuoteChars(s string) int {
	n := 0
	for _, r := range s {
		if r == '"' || r == '\'' || r == '`' {
			n++
		}
	}
	return n
}

// isNegated reports whether a negation word immediately precedes the match,
// scanning up to 100 chars back.
func isNegated(text string, position int) bool {
	start := position - 100
	if start < 0 {
		start = 0
	}
	return negationLookbackRe.MatchString(text[start:position])
}
