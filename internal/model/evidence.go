package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawResult is one hit from the search capability, before normalization.
type RawResult struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Published string `json:"published,omitempty"`
}

// EvidenceItem is a normalized, trust-scored retrieval result. Items are
// append-only: re-retrieval creates a new timestamped item rather than
// mutating an existing one.
type EvidenceItem struct {
	ID          string    `json:"id"` // content hash of source URL + normalized snippet
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	TrustScore  float64   `json:"trust_score"` // 0..1, from the domain trust table
	Published   string    `json:"published,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	ClusterID   string    `json:"cluster_id,omitempty"` // near-duplicate cluster membership
}

// EvidenceID derives the content-addressed identifier for an evidence item.
func EvidenceID(url, normalizedSnippet string) string {
	hash := sha256.Sum256([]byte(url + "|" + normalizedSnippet))
	return hex.EncodeToString(hash[:8])
}
