package router

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aristath/finsight/internal/domain"
	"github.com/rs/zerolog"
)

// VerdictProvider is the slice of the LLM client the model-assisted
// strategy needs: a single low-temperature quick-model completion.
type VerdictProvider interface {
	QuickCompletion(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// ModelAssistedRouter asks the quick model for a routing verdict and
// applies a strict parse-or-defer boundary: a malformed or invalid
// response never escapes as a route value.
type ModelAssistedRouter struct {
	model   VerdictProvider
	timeout time.Duration
	log     zerolog.Logger
}

// NewModelAssistedRouter creates a model-assisted routing strategy.
func NewModelAssistedRouter(model VerdictProvider, log zerolog.Logger) *ModelAssistedRouter {
	return &ModelAssistedRouter{
		model:   model,
		timeout: 3 * time.Second,
		log:     log.With().Str("component", "router_llm").Logger(),
	}
}

const verdictSystemPrompt = `You are a query router for a financial assistant.
Pick the cheapest route that can answer the query well. Routes:
CACHE_HIT (answer is likely cached), QUICK_MODEL (simple factual answer),
SEARCH_AUGMENTED (needs fresh news or web data), FULL_PIPELINE (deep
analysis with market data), BATCH_QUEUE (bulk quote lookups).
Respond with JSON only:
{"route":"...","reasoning":"...","confidence":0.0,"urgency":"low|normal|high","data_freshness":"stale_ok|recent|realtime"}`

// verdict is the model's JSON response shape.
type verdict struct {
	Route         string  `json:"route"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
	Urgency       string  `json:"urgency"`
	DataFreshness string  `json:"data_freshness"`
}

// Decide requests a JSON verdict from the model. Inconclusive on model
// error, unparseable output, or an unknown route value.
func (m *ModelAssistedRouter) Decide(ctx context.Context, in Input) (domain.RouteDecision, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(in.Query)
	if len(in.Recent) > 0 {
		sb.WriteString("\nRecent queries: ")
		sb.WriteString(strings.Join(in.Recent, "; "))
	}
	if in.Load != "" {
		sb.WriteString("\nSystem load: ")
		sb.WriteString(in.Load)
	}

	raw, err := m.model.QuickCompletion(ctx, verdictSystemPrompt, sb.String(), 150)
	if err != nil {
		m.log.Warn().Err(err).Msg("Routing verdict request failed")
		return domain.RouteDecision{}, false
	}

	v, err := parseVerdict(raw)
	if err != nil {
		m.log.Warn().Err(err).Str("raw", truncate(raw, 200)).Msg("Routing verdict rejected")
		return domain.RouteDecision{}, false
	}

	confidence := v.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.RouteDecision{
		Route:      domain.Route(v.Route),
		Reasoning:  v.Reasoning,
		Confidence: confidence,
		Method:     domain.MethodLLM,
	}, true
}

// parseVerdict extracts and validates the JSON object from the model
// output. Models sometimes wrap JSON in prose or code fences; only the
// outermost object is considered.
func parseVerdict(raw string) (verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return verdict{}, errNoJSONObject
	}

	var v verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return verdict{}, err
	}
	if !domain.KnownRoutes[domain.Route(v.Route)] {
		return verdict{}, errUnknownRoute
	}
	return v, nil
}

var (
	errNoJSONObject = jsonError("no JSON object in model output")
	errUnknownRoute = jsonError("unknown route value")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
