package models

import "time"

// ArticleStatus represents article processing state
type ArticleStatus string

const (
	ArticlePending  ArticleStatus = "pending"
	ArticleAnalyzed ArticleStatus = "analyzed"
	ArticleFailed   ArticleStatus = "failed"
	ArticleSkipped  ArticleStatus = "skipped"
)

// SourceTier represents credibility tier of news source
type SourceTier string

const (
	TierMajor   SourceTier = "MAJOR"
	TierMinor   SourceTier = "MINOR"
	TierSocial  SourceTier = "SOCIAL"
	TierUnknown SourceTier = "UNKNOWN"
)

// Weight returns the diversity weight used when scoring source variety
func (t SourceTier) Weight() float64 {
	switch t {
	case TierMajor:
		return 2.0
	case TierMinor:
		return 0.5
	case TierSocial:
		return 0.1
	default:
		return 0.3
	}
}

// SourceInfo describes a classified news source
type SourceInfo struct {
	Name        string     `json:"name"`
	Tier        SourceTier `json:"tier"`
	Credibility float64    `json:"credibility"`
	Country     string     `json:"country,omitempty"`
	Category    string     `json:"category,omitempty"`
}

// Article represents a collected news article
type Article struct {
	PublishedAt time.Time     `json:"published_at" db:"published_at"`
	CollectedAt time.Time     `json:"collected_at" db:"collected_at"`
	ID          string        `json:"id" db:"id"`
	Source      string        `json:"source" db:"source"`
	Title       string        `json:"title" db:"title"`
	Body        string        `json:"body" db:"body"`
	URL         string        `json:"url" db:"url"`
	Status      ArticleStatus `json:"status" db:"status"`
	Tickers     []string      `json:"tickers" db:"tickers"`
	Sentiment   *float64      `json:"sentiment,omitempty" db:"sentiment"` // -1..1, set by some collectors
}

// Text returns title and body joined for tokenization
func (a *Article) Text() string {
	if a.Body == "" {
		return a.Title
	}
	return a.Title + " " + a.Body
}
