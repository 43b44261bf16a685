// Package evidence implements the shared evidence store: a content-addressed,
// TTL-cached collection of retrieved documents with domain trust scoring and
// near-duplicate clustering.
package evidence

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/cache"
	"github.com/agentra/factcheck/internal/ingest"
	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/trust"
)

// stopWords stripped during query normalization so trivially rephrased
// subclaims hit the same cache entry.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "have": true,
	"in": true, "is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "with": true,
}

// Store is the process-wide evidence store. It is safe for concurrent use;
// concurrent inserts for the same normalized query merge into existing
// clusters rather than creating parallel representatives.
type Store struct {
	mu     sync.Mutex
	cache  cache.Cache
	trust  *trust.Table
	dedup  model.DedupConfig
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a store over the given cache and trust table.
func NewStore(c cache.Cache, table *trust.Table, dedup model.DedupConfig, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cache:  c,
		trust:  table,
		dedup:  dedup,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

type storedSet struct {
	Items    []model.EvidenceItem `json:"items"`
	StoredAt time.Time            `json:"stored_at"`
}

// NormalizeQuery canonicalizes query text: lowercase, whitespace collapsed,
// stop words stripped.
func NormalizeQuery(q string) string {
	words := strings.Fields(strings.ToLower(ingest.CleanText(q)))
	out := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

// Lookup returns the cached evidence set for a query if it is younger than
// the store TTL. A miss triggers nothing; the caller must Insert.
func (s *Store) Lookup(query string) ([]model.EvidenceItem, bool) {
	key := cache.Key(NormalizeQuery(query))

	data, found := s.cache.Get(key)
	if !found {
		return nil, false
	}

	var set storedSet
	if err := json.Unmarshal(data, &set); err != nil {
		s.logger.Warn("evidence cache entry corrupt, treating as miss", zap.Error(err))
		return nil, false
	}

	if s.ttl > 0 && s.now().Sub(set.StoredAt) > s.ttl {
		return nil, false
	}

	return set.Items, true
}

// Insert normalizes raw search results into evidence items, scores them
// against the trust table, clusters near-duplicates, and persists the
// merged set under the normalized query. It never fails the caller: on
// internal error it logs and returns whatever set it could build.
func (s *Store) Insert(query string, raws []model.RawResult) []model.EvidenceItem {
	normalized := NormalizeQuery(query)
	key := cache.Key(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Merge into any existing set so concurrent inserts for the same query
	// extend clusters instead of duplicating them.
	var existing []model.EvidenceItem
	if data, found := s.cache.Get(key); found {
		var set storedSet
		if err := json.Unmarshal(data, &set); err == nil {
			existing = set.Items
		}
	}

	items := existing
	seen := make(map[string]bool, len(existing))
	for _, it := range existing {
		seen[it.ID] = true
	}

	for _, raw := range raws {
		if raw.URL == "" {
			continue
		}

		snippet := ingest.CleanText(raw.Snippet)
		domain := raw.Domain
		if domain == "" {
			domain = trust.Domain(raw.URL)
		}

		item := model.EvidenceItem{
			ID:          model.EvidenceID(raw.URL, snippet),
			URL:         raw.URL,
			Domain:      domain,
			Title:       ingest.CleanText(raw.Title),
			Snippet:     snippet,
			TrustScore:  s.trust.Score(domain),
			Published:   raw.Published,
			RetrievedAt: s.now(),
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		item.ClusterID = s.assignCluster(items, item)
		items = append(items, item)
	}

	data, err := json.Marshal(storedSet{Items: items, StoredAt: s.now()})
	if err != nil {
		s.logger.Error("marshal evidence set", zap.Error(err))
		return items
	}
	if err := s.cache.Set(key, data, s.ttl); err != nil {
		// CacheFailure is non-fatal: retrieval degrades to uncached.
		s.logger.Warn("evidence cache write failed", zap.String("query", normalized), zap.Error(err))
	}

	return items
}

// assignCluster finds the near-duplicate cluster for a new item, or opens a
// new cluster keyed by the item's own id.
func (s *Store) assignCluster(items []model.EvidenceItem, item model.EvidenceItem) string {
	for _, other := range items {
		if Similarity(item.Title+" "+item.Snippet, other.Title+" "+other.Snippet) >= s.dedup.SimilarityThreshold {
			return other.ClusterID
		}
	}
	return item.ID
}

// Representatives collapses an evidence set to one item per dedup cluster.
// The earliest-retrieved item represents its cluster unless a later item's
// trust exceeds it by the promote margin. Output is trust-ranked descending,
// ties broken by retrieval time.
func (s *Store) Representatives(items []model.EvidenceItem) []model.EvidenceItem {
	byCluster := make(map[string]model.EvidenceItem)
	var order []string

	for _, item := range items {
		rep, ok := byCluster[item.ClusterID]
		if !ok {
			byCluster[item.ClusterID] = item
			order = append(order, item.ClusterID)
			continue
		}
		if item.TrustScore > rep.TrustScore+s.dedup.PromoteMargin {
			byCluster[item.ClusterID] = item
		}
	}

	reps := make([]model.EvidenceItem, 0, len(order))
	for _, id := range order {
		reps = append(reps, byCluster[id])
	}

	sort.SliceStable(reps, func(i, j int) bool {
		if reps[i].TrustScore != reps[j].TrustScore {
			return reps[i].TrustScore > reps[j].TrustScore
		}
		return reps[i].RetrievedAt.Before(reps[j].RetrievedAt)
	})

	return reps
}

// Similarity is the token-set Jaccard index of two texts in [0,1].
func Similarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var intersection int
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
