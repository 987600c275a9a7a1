package panel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/stockpanel/sentinel/internal/domain"
)

// Consensus computes the consensus fields on pr in place, reducing over
// the subset of ModelResults where Success && Score is present, per
// spec.md §4.5.
func Consensus(pr *domain.PanelResult) {
	type contribution = struct {
		result domain.ModelResult
		score  float64
	}

	var contributions []contribution
	for _, r := range pr.Results {
		if r.Success && r.Score != nil {
			contributions = append(contributions, contribution{result: r, score: *r.Score})
		}
	}

	if len(contributions) == 0 {
		pr.ConsensusScore = nil
		pr.ConsensusAdvice = "insufficient data"
		pr.ConsensusSummary = fmt.Sprintf("0/%d experts produced a usable score", len(pr.Results))
		pr.ConsensusStrategy = nil
		return
	}

	scores := make([]float64, len(contributions))
	for i, c := range contributions {
		scores[i] = c.score
	}
	mean := stat.Mean(scores, nil)
	meanRounded := math.Round(mean)
	pr.ConsensusScore = &meanRounded

	// Mode of advice, ties broken by insertion order of contributing
	// models (stat.Mode requires sorted+weighted input unsuited to
	// ties-by-order, so the count is tracked by hand here).
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, c := range contributions {
		if _, seen := counts[c.result.Advice]; !seen {
			order = append(order, c.result.Advice)
		}
		counts[c.result.Advice]++
	}
	best := order[0]
	for _, advice := range order[1:] {
		if counts[advice] > counts[best] {
			best = advice
		}
	}
	pr.ConsensusAdvice = best

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	pr.ConsensusSummary = fmt.Sprintf(
		"%d/%d experts recommend %s (score range %.0f-%.0f, consensus %.0f)",
		counts[best], len(pr.Results), best, minScore, maxScore, meanRounded,
	)

	pr.ConsensusStrategy = pickStrategy(contributions, best)
}

// pickStrategy returns the strategy points of the highest-scoring
// result whose advice matches the mode and whose raw result carries
// strategy points; otherwise the first available strategy; otherwise
// nil.
func pickStrategy(contributions []struct {
	result domain.ModelResult
	score  float64
}, modeAdvice string) *domain.StrategyPoints {
	var best *domain.ModelResult
	var bestScore float64
	for i := range contributions {
		c := contributions[i]
		if c.result.Advice != modeAdvice {
			continue
		}
		sp := strategyFromRaw(c.result.Raw)
		if sp == nil {
			continue
		}
		if best == nil || c.score > bestScore {
			best = &contributions[i].result
			bestScore = c.score
		}
	}
	if best != nil {
		return strategyFromRaw(best.Raw)
	}

	for i := range contributions {
		if sp := strategyFromRaw(contributions[i].result.Raw); sp != nil {
			return sp
		}
	}
	return nil
}

func strategyFromRaw(raw map[string]interface{}) *domain.StrategyPoints {
	if raw == nil {
		return nil
	}
	strategyVal, ok := raw["strategy"]
	if !ok {
		return nil
	}
	m, ok := strategyVal.(map[string]interface{})
	if !ok {
		return nil
	}
	sp := &domain.StrategyPoints{
		IdealBuy:     stringField(m, "ideal_buy"),
		SecondaryBuy: stringField(m, "secondary_buy"),
		StopLoss:     stringField(m, "stop_loss"),
		TakeProfit:   stringField(m, "take_profit"),
	}
	if sp.IdealBuy == "" && sp.SecondaryBuy == "" && sp.StopLoss == "" && sp.TakeProfit == "" {
		return nil
	}
	return sp
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
