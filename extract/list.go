package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/finadvisor/finance"
)

// ListResult is the outcome of optimization-list extraction. Degraded is set
// when the JSON path failed and the line-scanning heuristic produced the
// records instead; Reason then describes why.
type ListResult struct {
	Optimizations []finance.Optimization
	Degraded      bool
	Reason        string
}

var (
	numberedLinePattern     = regexp.MustCompile(`^\d+\.\s+.+`)
	optimizationLinePattern = regexp.MustCompile(`^Ottimizzazione \d+:`)
	numberedPrefixPattern   = regexp.MustCompile(`^\d+\.\s+`)
	optimizationPrefix      = regexp.MustCompile(`^Ottimizzazione \d+:\s*`)
)

// rawOptimization mirrors the JSON shape providers are prompted to emit.
type rawOptimization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Difficulty  string `json:"difficulty"`
	Timeframe   string `json:"timeframe"`
	Category    string `json:"category"`
}

// OptimizationList recovers a slice of optimizations from provider text.
// It first tries to isolate and parse a JSON array; if that fails it falls
// back to scanning numbered lines with Impatto/Difficoltà/Timeframe/Categoria
// markers. IDs are assigned sequentially (opt_1 … opt_n) on both paths.
func OptimizationList(text string) ListResult {
	if raw := JSONArray(text); raw != "" {
		var parsed []rawOptimization
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && len(parsed) > 0 {
			opts := make([]finance.Optimization, 0, len(parsed))
			for i, p := range parsed {
				opts = append(opts, finance.Optimization{
					ID:          fmt.Sprintf("opt_%d", i+1),
					Title:       p.Title,
					Description: p.Description,
					Impact:      finance.Impact(p.Impact),
					Difficulty:  finance.Difficulty(p.Difficulty),
					Timeframe:   finance.Timeframe(p.Timeframe),
					Category:    finance.Category(p.Category),
				})
			}
			return ListResult{Optimizations: opts}
		}
	}

	opts := optimizationsFromText(text)
	reason := "no JSON array found in response"
	if strings.Contains(text, "[") {
		reason = "JSON array found but not parseable"
	}
	return ListResult{Optimizations: opts, Degraded: true, Reason: reason}
}

// optimizationsFromText is the line-scanning fallback. A line matching
// "<n>. <title>" or "Ottimizzazione <n>:" starts a new record; marker lines
// set enum fields by first-token match with Medio/Media defaults; remaining
// non-empty lines accumulate into the description.
func optimizationsFromText(text string) []finance.Optimization {
	var optimizations []finance.Optimization
	var current *finance.Optimization

	flush := func() {
		if current != nil {
			current.Description = strings.TrimSpace(current.Description)
			optimizations = append(optimizations, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case numberedLinePattern.MatchString(trimmed) || optimizationLinePattern.MatchString(trimmed):
			flush()
			title := numberedPrefixPattern.ReplaceAllString(trimmed, "")
			title = optimizationPrefix.ReplaceAllString(title, "")
			current = &finance.Optimization{
				ID:         fmt.Sprintf("opt_%d", len(optimizations)+1),
				Title:      title,
				Impact:     finance.ImpactMedio,
				Difficulty: finance.DifficultyMedia,
				Timeframe:  finance.TimeframeMedio,
				Category:   finance.CategoryGenerale,
			}
		case current != nil && strings.Contains(trimmed, "Impatto:"):
			current.Impact = matchImpact(trimmed)
		case current != nil && strings.Contains(trimmed, "Difficoltà:"):
			current.Difficulty = matchDifficulty(trimmed)
		case current != nil && strings.Contains(trimmed, "Timeframe:"):
			current.Timeframe = matchTimeframe(trimmed)
		case current != nil && strings.Contains(trimmed, "Categoria:"):
			current.Category = matchCategory(trimmed)
		case current != nil && trimmed != "":
			current.Description += trimmed + " "
		}
	}
	flush()

	return optimizations
}

func matchImpact(line string) finance.Impact {
	switch {
	case strings.Contains(line, "Alto"):
		return finance.ImpactAlto
	case strings.Contains(line, "Basso"):
		return finance.ImpactBasso
	default:
		return finance.ImpactMedio
	}
}

func matchDifficulty(line string) finance.Difficulty {
	switch {
	case strings.Contains(line, "Alta"):
		return finance.DifficultyAlta
	case strings.Contains(line, "Bassa"):
		return finance.DifficultyBassa
	default:
		return finance.DifficultyMedia
	}
}

func matchTimeframe(line string) finance.Timeframe {
	switch {
	case strings.Contains(line, "Breve"):
		return finance.TimeframeBreve
	case strings.Contains(line, "Lungo"):
		return finance.TimeframeLungo
	default:
		return finance.TimeframeMedio
	}
}

func matchCategory(line string) finance.Category {
	_, after, found := strings.Cut(line, ":")
	cat := strings.ToLower(strings.TrimSpace(after))
	if !found || cat == "" {
		return finance.CategoryGenerale
	}
	return finance.Category(cat)
}
