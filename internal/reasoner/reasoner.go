// Package reasoner implements the cost-gated two-stage classifier:
// block/content/event deduplication ahead of an expensive LLM call,
// per spec.md §4.4.
package reasoner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"guardian-amm/internal/domain"
	"guardian-amm/internal/reasoner/llmclient"
)

const responseSchema = `{"classification":"FLASH_LOAN_ATTACK|ORACLE_MANIPULATION|SANDWICH|UNKNOWN_ANOMALY|NATURAL","confidence":0.0,"explanation":"string","evidence":["string"]}`

// Options configures a Reasoner.
type Options struct {
	AnalyzedEventsCapacity int
	CallTimeout            time.Duration // default 10s
}

// Result is the Reasoner's output for one cycle: the Classification
// plus whether the LLM's own reply failed to parse (for the
// ReasoningEvent's ParseFailed field).
type Result struct {
	Classification domain.Classification
	ParseFailed    bool
}

// Reasoner owns its dedup cache exclusively; no other component reads
// or mutates it.
type Reasoner struct {
	llm    llmclient.Client
	cache  *cache
	opts   Options
	logger zerolog.Logger
}

// New builds a Reasoner around the given LLM client. llm may be a fake
// in tests — the Reasoner never depends on HTTPClient concretely.
func New(llm llmclient.Client, opts Options, logger zerolog.Logger) *Reasoner {
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 10 * time.Second
	}
	return &Reasoner{
		llm:    llm,
		cache:  newCache(opts.AnalyzedEventsCapacity),
		opts:   opts,
		logger: logger.With().Str("component", "reasoner").Logger(),
	}
}

// Classify runs the three-stage dedup gate ahead of the LLM call.
// signalPresent is false when the Anomaly Filter found nothing — the
// caller need not invoke Classify at all in that case (the efficiency
// invariant of zero LLM calls on a quiet window holds trivially), but
// Classify handles it defensively by returning a deterministic_skip.
func (r *Reasoner) Classify(ctx context.Context, snap domain.Snapshot, signal domain.AnomalySignal, signalPresent bool) Result {
	if !signalPresent {
		return Result{Classification: domain.NaturalSkip(domain.SourceDeterministicSkip, "anomaly filter found no signal")}
	}

	if r.cache.sameBlockAsLastLLM(snap.BlockNumber) {
		return Result{Classification: domain.NaturalSkip(domain.SourceDedupSkip, "same block already analyzed")}
	}

	rc := buildContext(snap, signal)
	digest, err := rc.digest()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to hash reasoning context; treating as invariant error")
		return Result{Classification: domain.NaturalSkip(domain.SourceDeterministicSkip, "context hash failure")}
	}
	if r.cache.sameContextAsLast(digest) {
		return Result{Classification: domain.NaturalSkip(domain.SourceDedupSkip, "identical context already analyzed")}
	}

	liqKey := ""
	if signal == domain.SignalUnfairLiquidation {
		liqKey = liquidationKey(snap.LiquidationUser, snap.LiquidationBlock)
		if r.cache.hasAnalyzed(liqKey) {
			return Result{Classification: domain.NaturalSkip(domain.SourceDedupSkip, "liquidation event already analyzed")}
		}
	}

	return r.invokeLLM(ctx, snap, signal, rc, digest, liqKey)
}

func liquidationKey(user string, block uint64) string {
	return "liq:" + user + ":" + strconv.FormatUint(block, 10)
}

// invokeLLM calls the LLM; liqKey, when non-empty, is added to the
// analyzed-events set only once a reply has parsed successfully.
func (r *Reasoner) invokeLLM(ctx context.Context, snap domain.Snapshot, signal domain.AnomalySignal, rc reasonContext, digest [16]byte, liqKey string) Result {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	prompt := buildPrompt(rc)
	resp, err := r.llm.Classify(callCtx, llmclient.Request{Prompt: prompt, Schema: responseSchema})
	if err != nil {
		return r.handleLLMError(snap.BlockNumber, digest, err)
	}

	// A reply was obtained: record dedup state regardless of whether
	// the content parses/validates, to prevent retry storms.
	r.cache.recordLLMCall(snap.BlockNumber, digest)
	if liqKey != "" {
		r.cache.markAnalyzed(liqKey)
	}

	kind := domain.ClassificationKind(resp.Classification)
	if !domain.ValidKind(kind) {
		kind = domain.KindUnknownAnomaly
	}
	confidence := clampConfidence(resp.Confidence)
	evidence := resp.Evidence
	if len(evidence) > 5 {
		evidence = evidence[:5]
	}

	return Result{
		Classification: domain.Classification{
			Kind:          kind,
			Confidence:    confidence,
			Explanation:   resp.Explanation,
			Evidence:      evidence,
			Source:        domain.SourceLLM,
			CorrelationID: domain.NewCorrelationID(),
		},
	}
}

func (r *Reasoner) handleLLMError(block uint64, digest [16]byte, err error) Result {
	var contentErr *llmclient.ContentError
	if asContentError(err, &contentErr) {
		// A reply was obtained but its content didn't parse: still
		// update dedup state, keyed on the digest of the context that
		// was actually sent, to avoid looping on the same bad context.
		r.cache.recordLLMCall(block, digest)
		r.logger.Warn().Err(err).Msg("llm content parse failure")
		return Result{
			Classification: domain.Classification{
				Kind:          domain.KindUnknownAnomaly,
				Confidence:    0.5,
				Explanation:   "parse failure",
				Source:        domain.SourceLLM,
				CorrelationID: domain.NewCorrelationID(),
			},
			ParseFailed: true,
		}
	}

	// Transport error (timeout, HTTP error, connection failure): do
	// NOT update dedup state, so the next cycle may retry.
	r.logger.Warn().Err(err).Msg("llm transport failure")
	return Result{
		Classification: domain.Classification{
			Kind:          domain.KindUnknownAnomaly,
			Confidence:    0.5,
			Explanation:   "LLM unavailable",
			Source:        domain.SourceLLM,
			CorrelationID: domain.NewCorrelationID(),
		},
	}
}

func asContentError(err error, target **llmclient.ContentError) bool {
	ce, ok := err.(*llmclient.ContentError)
	if ok {
		*target = ce
	}
	return ok
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func buildPrompt(rc reasonContext) string {
	return fmt.Sprintf(
		"Market state: block=%d oracle_price=%s amm_price=%s deviation_pct=%s signal=%s swap_count=%d liquidation_seen=%v recent_prices=%v\n"+
			"Classify this market state. Respond with JSON only, matching the schema exactly.",
		rc.BlockNumber, rc.OraclePrice, rc.AMMPrice, rc.DeviationPct, rc.Signal, rc.SwapCount, rc.LiquidationOn, rc.RecentPrices,
	)
}
