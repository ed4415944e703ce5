package transcript

import (
	"strings"
)

// Searcher answers queries over the transcripts a Manager holds.
type Searcher struct {
	manager Manager
}

// NewSearcher creates a searcher over m.
func NewSearcher(m Manager) *Searcher {
	return &Searcher{manager: m}
}

// SearchOptions configures content search.
type SearchOptions struct {
	Filter        ListFilter
	CaseSensitive bool
	MaxResults    int
}

// SearchResult is one matching turn.
type SearchResult struct {
	ExecutionID string `json:"executionId"`
	TurnID      int    `json:"turnId"`
	NodeID      string `json:"nodeId,omitempty"`
	Role        string `json:"role"`
	Line        int    `json:"line"`
	Match       string `json:"match"`
}

// SearchContent returns every line of turn content containing query.
func (s *Searcher) SearchContent(query string, opts SearchOptions) ([]SearchResult, error) {
	metas, err := s.manager.List(opts.Filter)
	if err != nil {
		return nil, err
	}
	needle := query
	if !opts.CaseSensitive {
		needle = strings.ToLower(query)
	}

	var results []SearchResult
	for _, meta := range metas {
		t, err := s.manager.Load(meta.ExecutionID)
		if err != nil {
			continue
		}
		for _, turn := range t.Turns {
			for i, line := range strings.Split(turn.Content, "\n") {
				hay := line
				if !opts.CaseSensitive {
					hay = strings.ToLower(line)
				}
				if !strings.Contains(hay, needle) {
					continue
				}
				results = append(results, SearchResult{
					ExecutionID: meta.ExecutionID,
					TurnID:      turn.ID,
					NodeID:      turn.NodeID,
					Role:        turn.Role,
					Line:        i + 1,
					Match:       line,
				})
				if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
					return results, nil
				}
			}
		}
	}
	return results, nil
}

// Statistics aggregates transcript metadata.
type Statistics struct {
	TotalRuns      int
	CompletedRuns  int
	FailedRuns     int
	CancelledRuns  int
	PausedRuns     int
	ActiveRuns     int
	TotalTokensIn  int
	TotalTokensOut int
	AvgTokensIn    int
	AvgTokensOut   int
}

// RunStats aggregates the transcripts matching filter.
func (s *Searcher) RunStats(filter ListFilter) (*Statistics, error) {
	metas, err := s.manager.List(filter)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{TotalRuns: len(metas)}
	for _, m := range metas {
		switch m.Status {
		case RunStatusCompleted:
			stats.CompletedRuns++
		case RunStatusFailed:
			stats.FailedRuns++
		case RunStatusCancelled:
			stats.CancelledRuns++
		case RunStatusPaused:
			stats.PausedRuns++
		case RunStatusRunning:
			stats.ActiveRuns++
		}
		stats.TotalTokensIn += m.TotalTokensIn
		stats.TotalTokensOut += m.TotalTokensOut
	}
	if stats.TotalRuns > 0 {
		stats.AvgTokensIn = stats.TotalTokensIn / stats.TotalRuns
		stats.AvgTokensOut = stats.TotalTokensOut / stats.TotalRuns
	}
	return stats, nil
}
