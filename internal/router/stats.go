package router

import (
	"github.com/aristath/finsight/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Keep a bounded sample of estimated decision latencies for the
// mean/stddev summary.
const latencySampleMax = 1000

// routeStats accumulates per-route counts and the cumulative cost and
// latency saved versus always choosing the full pipeline. Callers hold
// the router mutex.
type routeStats struct {
	byRoute        map[domain.Route]int64
	byMethod       map[domain.RouteMethod]int64
	decisions      int64
	costSaved      float64
	latencySavedMs int64
	latencySample  []float64
}

func newRouteStats() routeStats {
	return routeStats{
		byRoute:  make(map[domain.Route]int64),
		byMethod: make(map[domain.RouteMethod]int64),
	}
}

func (s *routeStats) record(d domain.RouteDecision, fullCost float64, fullLatencyMs int64) {
	s.byRoute[d.Route]++
	s.byMethod[d.Method]++
	s.decisions++
	s.costSaved += fullCost - d.EstimatedCost
	s.latencySavedMs += fullLatencyMs - d.EstimatedLatencyMs

	s.latencySample = append(s.latencySample, float64(d.EstimatedLatencyMs))
	if len(s.latencySample) > latencySampleMax {
		s.latencySample = append(s.latencySample[:0:0], s.latencySample[len(s.latencySample)-latencySampleMax:]...)
	}
}

// StatsSummary is the routing statistics snapshot for the API surface.
type StatsSummary struct {
	Decisions       int64            `json:"decisions"`
	ByRoute         map[string]int64 `json:"by_route"`
	ByMethod        map[string]int64 `json:"by_method"`
	CostSaved       float64          `json:"cost_saved"`
	LatencySavedMs  int64            `json:"latency_saved_ms"`
	MeanLatencyMs   float64          `json:"mean_latency_ms"`
	StdDevLatencyMs float64          `json:"stddev_latency_ms"`
	WindowSize      int              `json:"window_size"`
}

func (s *routeStats) summary(windowSize int) StatsSummary {
	byRoute := make(map[string]int64, len(s.byRoute))
	for k, v := range s.byRoute {
		byRoute[string(k)] = v
	}
	byMethod := make(map[string]int64, len(s.byMethod))
	for k, v := range s.byMethod {
		byMethod[string(k)] = v
	}

	out := StatsSummary{
		Decisions:      s.decisions,
		ByRoute:        byRoute,
		ByMethod:       byMethod,
		CostSaved:      s.costSaved,
		LatencySavedMs: s.latencySavedMs,
		WindowSize:     windowSize,
	}
	if len(s.latencySample) > 0 {
		out.MeanLatencyMs = stat.Mean(s.latencySample, nil)
	}
	if len(s.latencySample) > 1 {
		out.StdDevLatencyMs = stat.StdDev(s.latencySample, nil)
	}
	return out
}
