package audit

import (
	"context"
	"fmt"
	"time"
)

// Statistics summarizes the events of a time range.
type Statistics struct {
	From                      time.Time         `json:"from"`
	To                        time.Time         `json:"to"`
	TotalEvents               int               `json:"totalEvents"`
	SuccessfulEvents          int               `json:"successfulEvents"`
	FailedEvents              int               `json:"failedEvents"`
	EventsByType              map[EventType]int `json:"eventsByType"`
	AuthenticationSuccessRate float64           `json:"authenticationSuccessRate"`
	SanitizationOperations    int               `json:"sanitizationOperations"`
}

// ComputeStatistics aggregates the events in [from, to).
func ComputeStatistics(ctx context.Context, store Store, from, to time.Time) (Statistics, error) {
	events, err := store.Query(ctx, Filter{From: from, To: to})
	if err != nil {
		return Statistics{}, fmt.Errorf("query audit statistics: %w", err)
	}

	stats := Statistics{
		From:         from,
		To:           to,
		TotalEvents:  len(events),
		EventsByType: make(map[EventType]int),
	}
	for _, e := range events {
		stats.EventsByType[e.Type]++
		if e.Success {
			stats.SuccessfulEvents++
		} else {
			stats.FailedEvents++
		}
	}

	ok := stats.EventsByType[EventAuthenticationSuccess]
	failed := stats.EventsByType[EventAuthenticationFailure]
	if total := ok + failed; total > 0 {
		stats.AuthenticationSuccessRate = float64(ok) / float64(total)
	}
	stats.SanitizationOperations = stats.EventsByType[EventDataSanitization]

	return stats, nil
}
