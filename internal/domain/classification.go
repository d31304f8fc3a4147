package domain

import "github.com/google/uuid"

// ClassificationKind enumerates the reasoner's output labels.
type ClassificationKind string

const (
	KindNatural            ClassificationKind = "NATURAL"
	KindFlashLoanAttack    ClassificationKind = "FLASH_LOAN_ATTACK"
	KindOracleManipulation ClassificationKind = "ORACLE_MANIPULATION"
	KindSandwich           ClassificationKind = "SANDWICH"
	KindUnknownAnomaly     ClassificationKind = "UNKNOWN_ANOMALY"
)

// ClassificationSource records which path produced a Classification.
type ClassificationSource string

const (
	SourceDeterministicSkip ClassificationSource = "deterministic_skip"
	SourceDedupSkip         ClassificationSource = "dedup_skip"
	SourceLLM               ClassificationSource = "llm"
)

// Classification is the reasoner's output. When Source != SourceLLM,
// Kind MUST be KindNatural and Confidence MUST be 0 — callers that
// construct a non-LLM Classification should use the NaturalSkip
// constructor below rather than building the struct by hand.
type Classification struct {
	Kind          ClassificationKind
	Confidence    float64
	Explanation   string
	Evidence      []string
	Source        ClassificationSource
	CorrelationID string
}

// NaturalSkip builds a Classification for a deduplicated or
// deterministically-skipped cycle.
func NaturalSkip(source ClassificationSource, explanation string) Classification {
	return Classification{
		Kind:          KindNatural,
		Confidence:    0,
		Explanation:   explanation,
		Source:        source,
		CorrelationID: NewCorrelationID(),
	}
}

// NewCorrelationID returns a fresh random identifier; each
// Classification and ActionRecord gets its own.
func NewCorrelationID() string {
	return uuid.NewString()
}

// ValidKind reports whether k is one of the five recognized kinds.
func ValidKind(k ClassificationKind) bool {
	switch k {
	case KindNatural, KindFlashLoanAttack, KindOracleManipulation, KindSandwich, KindUnknownAnomaly:
		return true
	}
	return false
}
