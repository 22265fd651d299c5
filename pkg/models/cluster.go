package models

import "time"

// Verdict classifies how a news cluster propagated across sources
type Verdict string

const (
	VerdictPending          Verdict = "PENDING"
	VerdictEmbargoEvent     Verdict = "EMBARGO_EVENT"
	VerdictManipulation     Verdict = "MANIPULATION_ATTACK"
	VerdictSuspiciousBurst  Verdict = "SUSPICIOUS_BURST"
	VerdictOrganicConsensus Verdict = "ORGANIC_CONSENSUS"
	VerdictViralTrend       Verdict = "VIRAL_TREND"
)

// EventLock marks a cluster as aligned with a scheduled market event
type EventLock struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	EventName  string  `json:"event_name,omitempty"`
}

// ClusterScores holds the four propagation signals for a cluster
type ClusterScores struct {
	Diversity float64   `json:"diversity"` // 0..1, source variety and credibility
	Timing    float64   `json:"timing"`    // -1..1, natural vs scripted cadence
	Variety   float64   `json:"variety"`   // 0..1, content independence
	Event     EventLock `json:"event"`
}

// Cluster groups related articles that share a content fingerprint
type Cluster struct {
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
	CoolingUntil *time.Time    `json:"cooling_until,omitempty"`
	Key          string        `json:"key"`
	Theme        string        `json:"theme"`
	Verdict      Verdict       `json:"verdict"`
	Tickers      []string      `json:"tickers"`
	Articles     []Article     `json:"articles"`
	Keywords     []string      `json:"keywords"`
	Scores       ClusterScores `json:"scores"`
	Multiplier   float64       `json:"multiplier"`
	Intensity    float64       `json:"intensity"`
}

// Size returns the number of articles in the cluster
func (c *Cluster) Size() int {
	return len(c.Articles)
}

// IsCooling reports whether signal generation is suppressed at the given time
func (c *Cluster) IsCooling(now time.Time) bool {
	return c.CoolingUntil != nil && now.Before(*c.CoolingUntil)
}

// UniqueSources returns distinct source names in first-seen order
func (c *Cluster) UniqueSources() []string {
	seen := make(map[string]struct{}, len(c.Articles))
	out := make([]string, 0, len(c.Articles))
	for _, a := range c.Articles {
		if _, ok := seen[a.Source]; ok {
			continue
		}
		seen[a.Source] = struct{}{}
		out = append(out, a.Source)
	}
	return out
}
