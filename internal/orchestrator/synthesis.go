package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/finsight/internal/domain"
)

// contaminationMarkers are cross-session leakage signatures. A
// synthesized response containing any of them is discarded and every
// cache tier is flushed.
var contaminationMarkers = []string{
	"[session:",
	"session_id=",
	"do not show this to other users",
	"<internal>",
	"system prompt:",
}

func isContaminated(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range contaminationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

const synthesisSystemPrompt = `You are a concise financial assistant. Answer using only
the provided market data and your general knowledge. State numbers
plainly, note when data is unavailable, and never give definitive
buy/sell instructions.`

// synthesize produces the natural-language response. Falls back to a
// deterministic template when no model is wired or the model fails;
// the fallback marks the result degraded.
func (o *Orchestrator) synthesize(ctx context.Context, query, sessionID string, u domain.Understanding, data map[string]domain.MarketData) (string, domain.TokenUsage, bool) {
	if o.deps.LLM == nil {
		return templateResponse(u, data), domain.TokenUsage{}, false
	}

	system := synthesisSystemPrompt
	if prompt := o.deps.Sessions.ContextPrompt(sessionID); prompt != "" {
		system += "\nConversation context: " + prompt
	}

	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	if digest := dataDigest(data); digest != "" {
		sb.WriteString("\nMarket data:\n")
		sb.WriteString(digest)
	}

	response, usage, err := o.deps.LLM.CompletePrompt(ctx, system, sb.String(), 0.4, 600)
	if err != nil || strings.TrimSpace(response) == "" {
		o.log.Warn().Err(err).Msg("Synthesis failed, using template response")
		return templateResponse(u, data), domain.TokenUsage{}, true
	}
	return strings.TrimSpace(response), usage, false
}

// dataDigest renders fetched data as prompt lines, symbols sorted for
// determinism.
func dataDigest(data map[string]domain.MarketData) string {
	if len(data) == 0 {
		return ""
	}

	syms := make([]string, 0, len(data))
	for sym := range data {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	var sb strings.Builder
	for _, sym := range syms {
		md := data[sym]
		switch {
		case md.Degraded:
			fmt.Fprintf(&sb, "- %s: data unavailable\n", sym)
		case md.Source == "search":
			fmt.Fprintf(&sb, "- %s: %s\n", sym, md.Summary)
		default:
			fmt.Fprintf(&sb, "- %s: $%.2f (%+.2f%%), volume %d, range $%.2f-$%.2f\n",
				sym, md.Price, md.ChangePercent, md.Volume, md.DayLow, md.DayHigh)
		}
	}
	return sb.String()
}

// templateResponse is the deterministic synthesis fallback.
func templateResponse(u domain.Understanding, data map[string]domain.MarketData) string {
	if len(data) == 0 {
		if len(u.Symbols) > 0 {
			return fmt.Sprintf("I couldn't retrieve data for %s right now. Please try again shortly.",
				strings.Join(u.Symbols, ", "))
		}
		return "I can help with stock prices, news and analysis. Try asking about a specific ticker."
	}

	syms := make([]string, 0, len(data))
	for sym := range data {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	var parts []string
	for _, sym := range syms {
		md := data[sym]
		switch {
		case md.Degraded:
			parts = append(parts, fmt.Sprintf("%s: data temporarily unavailable", sym))
		case md.Source == "search":
			parts = append(parts, fmt.Sprintf("%s: %s", sym, md.Summary))
		default:
			parts = append(parts, fmt.Sprintf("%s is at $%.2f (%+.2f%% today)", sym, md.Price, md.ChangePercent))
		}
	}
	return strings.Join(parts, ". ") + "."
}
