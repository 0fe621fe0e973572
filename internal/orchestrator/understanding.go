package orchestrator

import (
	"context"
	"fmt"

	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/session"
	"github.com/aristath/finsight/internal/symbols"
)

// understand extracts intent and symbols, model-assisted when a
// provider is wired. A provider error is fatal to the query; without a
// provider the local rule-based understanding stands on its own.
func (o *Orchestrator) understand(ctx context.Context, query string, sess session.Context) (domain.Understanding, error) {
	local := o.localUnderstanding(query)
	if o.deps.LLM == nil {
		return local, nil
	}

	history := make([]string, 0, len(sess.History))
	for _, rec := range sess.History {
		history = append(history, rec.Query)
	}

	intent, err := o.deps.LLM.Classify(ctx, query, history)
	if err != nil {
		return domain.Understanding{}, fmt.Errorf("intent classification: %w", err)
	}
	extracted, err := o.deps.LLM.ExtractSymbols(ctx, query, history)
	if err != nil {
		return domain.Understanding{}, fmt.Errorf("symbol extraction: %w", err)
	}

	u := local
	u.Status = domain.StatusUnderstood
	if intent != "" {
		u.Intent = intent
	}
	if len(extracted) > 0 {
		valid, invalid := o.deps.Registry.Validate(extracted)
		u.Symbols = valid
		u.InvalidSymbols = append(u.InvalidSymbols, invalid...)
	}
	return u, nil
}

// prepare is the fast local branch: regex symbol extraction, query-type
// classification and freshness derivation. No network.
func (o *Orchestrator) prepare(query string) (domain.Understanding, error) {
	return o.localUnderstanding(query), nil
}

func (o *Orchestrator) localUnderstanding(query string) domain.Understanding {
	qtype := symbols.ClassifyQueryType(query)
	syms := o.deps.Registry.Extract(query)

	return domain.Understanding{
		Status:        domain.StatusUnderstood,
		Intent:        string(qtype),
		QueryType:     qtype,
		Symbols:       syms,
		NeedsRealtime: qtype == domain.QueryTypePrice || qtype == domain.QueryTypeNews,
		SkipFetch:     len(syms) == 0 && qtype == domain.QueryTypeGeneral,
	}
}

// mergeUnderstanding combines the model branch with the local
// preparation branch: prep's symbols win when non-empty, and the
// optimization hints ride along.
func mergeUnderstanding(understanding, prep domain.Understanding) domain.Understanding {
	out := understanding
	if len(prep.Symbols) > 0 {
		out.Symbols = prep.Symbols
	}
	if len(prep.InvalidSymbols) > 0 {
		out.InvalidSymbols = append(out.InvalidSymbols, prep.InvalidSymbols...)
	}
	out.NeedsRealtime = out.NeedsRealtime || prep.NeedsRealtime
	out.SkipFetch = out.SkipFetch && prep.SkipFetch
	if out.QueryType == "" {
		out.QueryType = prep.QueryType
	}
	return out
}
