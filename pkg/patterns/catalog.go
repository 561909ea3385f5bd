// Package patterns provides the immutable detection catalog for the threat
// engine: threat signatures, whitelist patterns, legitimate-context patterns,
// attack-chain templates and constraint-erosion families. All regexes are
// compiled once at catalog construction and shared read-only afterwards.
//
// Design principles:
//   - COMPILE ONCE: every pattern is compiled at construction, not per-scan
//   - INJECTED: the catalog is an explicit value passed into the engine,
//     never a package-level singleton
//   - CATEGORIZED: signatures organized by threat category for targeted scans
//   - EXTENSIBLE: YAML seed files can extend the built-in tables at startup
package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// ContextType identifies the rhetorical setting of a text span.
type ContextType string

const (
	ContextUserInput     ContextType = "user_input"
	ContextLLMResponse   ContextType = "llm_response"
	ContextConversation  ContextType = "conversation"
	ContextCodeBlock     ContextType = "code_block"
	ContextEducational   ContextType = "educational"
	ContextResearch      ContextType = "research"
	ContextDocumentation ContextType = "documentation"
	ContextUnknown       ContextType = "unknown"
)

// ParseContextType maps a wire string to a ContextType, defaulting to unknown.
func ParseContextType(s string) ContextType {
	switch ContextType(strings.ToLower(strings.TrimSpace(s))) {
	case ContextUserInput, ContextLLMResponse, ContextConversation, ContextCodeBlock,
		ContextEducational, ContextResearch, ContextDocumentation:
		return ContextType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ContextUnknown
	}
}

// BenignContexts are the context types that allow adjusted severity to floor
// at zero and that arm the SAFE guard clause in the scorer.
var BenignContexts = map[ContextType]bool{
	ContextEducational:   true,
	ContextResearch:      true,
	ContextDocumentation: true,
	ContextCodeBlock:     true,
}

// Category represents a threat signature category.
type Category string

const (
	CategoryPromptInjection     Category = "prompt_injection"
	CategoryJailbreak           Category = "jailbreak"
	CategoryDataExtraction      Category = "data_extraction"
	CategoryManipulation        Category = "manipulation"
	CategoryEncodingAttack      Category = "encoding_attack"
	CategoryAuthorityExploit    Category = "authority_exploitation"
	CategoryInstructionOverride Category = "instruction_manipulation"
	CategoryRoleAssumption      Category = "role_assumption"
	CategorySafetyBypass        Category = "safety_bypass"
	CategoryMultiTurnSetup      Category = "multi_turn_setup"
)

// Hit is a single occurrence of a signature pattern in a text.
type Hit struct {
	Pattern  string // the pattern text that fired
	Position int    // byte offset of the occurrence
}

// compiledPattern pairs a pattern's display text with its compiled matcher.
// Literal phrases are quoted into case-insensitive regexes so literals and
// raw regexes share one matching path.
type compiledPattern struct {
	text string
	re   *regexp.Regexp
}

// Signature is one named threat category: its patterns, base severity and
// per-context sensitivity multipliers. Immutable after catalog construction.
type Signature struct {
	Name                string
	Category            Category
	Severity            int // base severity contribution (0-100)
	Description         string
	ContextSensitivity  map[ContextType]float64 // context type -> multiplier in [0,1]
	ClusteringWeight    float64
	PositionSensitivity string // "low" | "medium" | "high" | "very_high"

	patterns []compiledPattern
}

// FindAll returns every occurrence of every pattern of this signature in
// text. Text is expected to be lowercased/normalized by the caller.
func (s *Signature) FindAll(text string) []Hit {
	var hits []Hit
	for _, p := range s.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			hits = append(hits, Hit{Pattern: p.text, Position: loc[0]})
		}
	}
	return hits
}

// PatternCount returns the number of patterns in this signature.
func (s *Signature) PatternCount() int { return len(s.patterns) }

// WhitelistCategory labels a class of legitimate use cases.
type WhitelistCategory string

const (
	WhitelistSecurityEducation WhitelistCategory = "security_education"
	WhitelistAcademicResearch  WhitelistCategory = "academic_research"
	WhitelistDocumentation     WhitelistCategory = "documentation"
	WhitelistMetaDiscussion    WhitelistCategory = "meta_discussion"
	WhitelistTestingDemo       WhitelistCategory = "testing_demo"
	WhitelistCodeExample       WhitelistCategory = "code_example"
)

// ChainStage is one stage of a multi-turn attack template.
type ChainStage struct {
	Name         string
	Keywords     []string
	MinRiskScore float64
}

// ChainTemplate is a named multi-stage conversational attack pattern.
type ChainTemplate struct {
	Name        string
	Description string
	Stages      []ChainStage
	Indicators  []string
	MinTurns    int
	Severity    string // LOW | MEDIUM | HIGH | CRITICAL
}

// ErosionFamily is one constraint-erosion pattern family. Boundary names the
// safety boundary degraded when the family fires.
type ErosionFamily struct {
	Name               string
	Description        string
	Indicators         []string
	SeverityMultiplier float64
	Boundary           string
}

// Catalog bundles every static detection table. Construct once at process
// start with NewCatalog and share freely; it is read-only afterwards.
type Catalog struct {
	signatures []*Signature
	byCategory map[Category][]*Signature

	whitelist  map[WhitelistCategory][]*regexp.Regexp
	legitimate []*regexp.Regexp

	chains  []*ChainTemplate
	erosion []*ErosionFamily
}

// Option configures catalog construction.
type Option func(*catalogConfig)

type catalogConfig struct {
	seedDirs     []string
	extraSigs    []SignatureSpec
	skipBuiltins bool
}

// WithSeedDir adds a directory of YAML seed files whose signatures extend
// the built-in tables.
func WithSeedDir(dir string) Option {
	return func(c *catalogConfig) { c.seedDirs = append(c.seedDirs, dir) }
}

// WithSignatures adds caller-supplied signature specs on top of the builtins.
func WithSignatures(specs ...SignatureSpec) Option {
	return func(c *catalogConfig) { c.extraSigs = append(c.extraSigs, specs...) }
}

// WithoutBuiltins drops the built-in signature tables. Chain templates,
// erosion families and whitelist tables are always loaded. Mostly for tests.
func WithoutBuiltins() Option {
	return func(c *catalogConfig) { c.skipBuiltins = true }
}

// SignatureSpec is the loadable (pre-compilation) form of a Signature.
type SignatureSpec struct {
	Name                string             `yaml:"name"`
	Category            string             `yaml:"category"`
	Severity            int                `yaml:"severity"`
	Description         string             `yaml:"description"`
	Patterns            []string           `yaml:"patterns"` // literal phrases
	Regex               []string           `yaml:"regex"`    // raw regular expressions
	ContextSensitivity  map[string]float64 `yaml:"context_sensitivity"`
	ClusteringWeight    float64            `yaml:"clustering_weight"`
	PositionSensitivity string             `yaml:"position_sensitivity"`
}

// NewCatalog builds the full detection catalog. Pattern compilation errors
// are returned immediately; the process should treat them as fatal since the
// catalog is immutable and shared.
func NewCatalog(opts ...Option) (*Catalog, error) {
	var cfg catalogConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Catalog{
		byCategory: make(map[Category][]*Signature),
		whitelist:  make(map[WhitelistCategory][]*regexp.Regexp),
	}

	specs := make([]SignatureSpec, 0, 16)
	if !cfg.skipBuiltins {
		specs = append(specs, builtinSignatures()...)
	}
	specs = append(specs, cfg.extraSigs...)

	for _, dir := range cfg.seedDirs {
		seeded, err := loadSeedDir(dir)
		if err != nil {
			return nil, err
		}
		specs = append(specs, seeded...)
	}

	for _, spec := range specs {
		if err := c.addSignature(spec); err != nil {
			return nil, err
		}
	}

	if err := c.loadWhitelist(); err != nil {
		return nil, err
	}
	c.chains = builtinChainTemplates()
	c.erosion = builtinErosionFamilies()

	return c, nil
}

// addSignature compiles and registers one signature spec.
func (c *Catalog) addSignature(spec SignatureSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("signature with empty name")
	}
	if len(spec.Patterns) == 0 && len(spec.Regex) == 0 {
		return fmt.Errorf("signature %q has no patterns", spec.Name)
	}

	sig := &Signature{
		Name:                spec.Name,
		Category:            Category(spec.Category),
		Severity:            spec.Severity,
		Description:         spec.Description,
		ContextSensitivity:  make(map[ContextType]float64, len(spec.ContextSensitivity)),
		ClusteringWeight:    spec.ClusteringWeight,
		PositionSensitivity: spec.PositionSensitivity,
	}
	if sig.Category == "" {
		sig.Category = Category(spec.Name)
	}
	if sig.ClusteringWeight == 0 {
		sig.ClusteringWeight = 1.0
	}
	for ctx, mult := range spec.ContextSensitivity {
		sig.ContextSensitivity[ContextType(ctx)] = mult
	}

	for _, lit := range spec.Patterns {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(lit))
		if err != nil {
			return fmt.Errorf("signature %q: pattern %q: %w", spec.Name, lit, err)
		}
		sig.patterns = append(sig.patterns, compiledPattern{text: lit, re: re})
	}
	for _, raw := range spec.Regex {
		re, err := regexp.Compile(raw)
		if err != nil {
			return fmt.Errorf("signature %q: regex %q: %w", spec.Name, raw, err)
		}
		sig.patterns = append(sig.patterns, compiledPattern{text: raw, re: re})
	}

	c.signatures = append(c.signatures, sig)
	c.byCategory[sig.Category] = append(c.byCategory[sig.Category], sig)
	return nil
}

// loadWhitelist compiles the whitelist and legitimate-context tables.
func (c *Catalog) loadWhitelist() error {
	for cat, raws := range builtinWhitelist() {
		for _, raw := range raws {
			re, err := regexp.Compile(raw)
			if err != nil {
				return fmt.Errorf("whitelist %s: %q: %w", cat, raw, err)
			}
			c.whitelist[cat] = append(c.whitelist[cat], re)
		}
	}
	for _, raw := range builtinLegitimateContext() {
		re, err := regexp.Compile(raw)
		if err != nil {
			return fmt.Errorf("legitimate context: %q: %w", raw, err)
		}
		c.legitimate = append(c.legitimate, re)
	}
	return nil
}

// Signatures returns all registered signatures.
func (c *Catalog) Signatures() []*Signature { return c.signatures }

// ByCategory returns signatures for one category. Never nil.
func (c *Catalog) ByCategory(cat Category) []*Signature {
	if sigs, ok := c.byCategory[cat]; ok {
		return sigs
	}
	return []*Signature{}
}

// SignatureCount returns the number of registered signatures.
func (c *Catalog) SignatureCount() int { return len(c.signatures) }

// WhitelistCategories returns the whitelist categories whose patterns match
// text, in stable registration order.
func (c *Catalog) WhitelistCategories(text string) []WhitelistCategory {
	var matched []WhitelistCategory
	for _, cat := range whitelistOrder {
		for _, re := range c.whitelist[cat] {
			if re.MatchString(text) {
				matched = append(matched, cat)
				break
			}
		}
	}
	return matched
}

// LegitimateContextHits counts legitimate-context indicators present in text.
func (c *Catalog) LegitimateContextHits(text string) int {
	n := 0
	for _, re := range c.legitimate {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// Chains returns the attack-chain templates.
func (c *Catalog) Chains() []*ChainTemplate { return c.chains }

// ErosionFamilies returns the constraint-erosion pattern families.
func (c *Catalog) ErosionFamilies() []*ErosionFamily { return c.erosion }

// whitelistOrder fixes iteration order for WhitelistCategories.
var whitelistOrder = []WhitelistCategory{
	WhitelistSecurityEducation,
	WhitelistAcademicResearch,
	WhitelistDocumentation,
	WhitelistMetaDiscussion,
	WhitelistTestingDemo,
	WhitelistCodeExample,
}
