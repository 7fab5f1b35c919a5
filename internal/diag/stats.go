// Package diag builds the stats, agents, and doctor reports.
package diag

import (
	"github.com/kalambet/sift/internal/store"
)

// StatsReport summarizes the index contents.
type StatsReport struct {
	SessionCount    int64  `json:"session_count"`
	OldestMessageAt string `json:"oldest_message_at,omitempty"`
	NewestMessageAt string `json:"newest_message_at,omitempty"`
}

// LoadStats reads the aggregate session statistics.
func LoadStats(s *store.Store) (StatsReport, error) {
	count, oldest, newest, err := s.SessionStats()
	if err != nil {
		return StatsReport{}, err
	}
	return StatsReport{
		SessionCount:    count,
		OldestMessageAt: oldest,
		NewestMessageAt: newest,
	}, nil
}

// AgentReport is one agent with its indexed session count.
type AgentReport struct {
	Name         string `json:"name"`
	SessionCount int64  `json:"session_count"`
}

// LoadAgents lists the distinct agents in the index, most sessions first.
func LoadAgents(s *store.Store) ([]AgentReport, error) {
	counts, err := s.AgentCounts()
	if err != nil {
		return nil, err
	}
	agents := make([]AgentReport, len(counts))
	for i, c := range counts {
		agents[i] = AgentReport{Name: c.Name, SessionCount: c.SessionCount}
	}
	return agents, nil
}
