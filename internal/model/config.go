package model

import "time"

// Config is the complete runtime configuration. All numeric thresholds in
// the pipeline are tunables here rather than inferred constants.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Trust     TrustConfig     `yaml:"trust" mapstructure:"trust"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Debate    DebateConfig    `yaml:"debate" mapstructure:"debate"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Progress  ProgressConfig  `yaml:"progress" mapstructure:"progress"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
}

// LLMConfig configures the reasoning capability provider.
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "openai" or "" (disabled)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"` // custom endpoints (e.g. Ollama's OpenAI API)
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"`   // seconds per call
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SearchConfig configures the hybrid web/news search capability.
type SearchConfig struct {
	APIKey         string   `yaml:"api_key" mapstructure:"api_key"`
	Endpoint       string   `yaml:"endpoint" mapstructure:"endpoint"`
	PerQueryCount  int      `yaml:"per_query_count" mapstructure:"per_query_count"`
	Whitelist      []string `yaml:"whitelist" mapstructure:"whitelist"` // optional domain filter on results
	RPS            float64  `yaml:"rps" mapstructure:"rps"`             // shared global rate
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	MaxRetries     int      `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseMs  int      `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	TimeoutSeconds int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent      string   `yaml:"user_agent" mapstructure:"user_agent"`
	EnrichPages    bool     `yaml:"enrich_pages" mapstructure:"enrich_pages"` // robots-gated full-page snippet enrichment
}

// RetrievalConfig bounds the planner's fan-out and evidence set.
type RetrievalConfig struct {
	MaxQueries          int `yaml:"max_queries" mapstructure:"max_queries"`                     // queries per claim
	PerClaimConcurrency int `yaml:"per_claim_concurrency" mapstructure:"per_claim_concurrency"` // parallel queries per claim
	MaxEvidence         int `yaml:"max_evidence" mapstructure:"max_evidence"`                   // evidence set cap per claim
}

// TrustConfig drives domain trust scoring. Whitelisted domains score the
// ceiling, reputation entries interpolate, unknown domains get the floor.
type TrustConfig struct {
	Floor      float64            `yaml:"floor" mapstructure:"floor"`
	Ceiling    float64            `yaml:"ceiling" mapstructure:"ceiling"`
	HighTrust  float64            `yaml:"high_trust" mapstructure:"high_trust"` // threshold for "high-trust" evidence in calibration
	Whitelist  []string           `yaml:"whitelist" mapstructure:"whitelist"`
	Reputation map[string]float64 `yaml:"reputation" mapstructure:"reputation"`
}

// DedupConfig controls near-duplicate evidence clustering.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"` // token Jaccard, same cluster at or above
	PromoteMargin       float64 `yaml:"promote_margin" mapstructure:"promote_margin"`             // trust gain required to displace a representative
}

// DebateConfig tunes the Analyst/Skeptic/Judge state machine.
type DebateConfig struct {
	MaxCrossRounds        int     `yaml:"max_cross_rounds" mapstructure:"max_cross_rounds"` // K
	RepetitionThreshold   float64 `yaml:"repetition_threshold" mapstructure:"repetition_threshold"`
	MinIndependentDomains int     `yaml:"min_independent_domains" mapstructure:"min_independent_domains"`
	LowCeiling            float64 `yaml:"low_ceiling" mapstructure:"low_ceiling"`
	ModerateThreshold     float64 `yaml:"moderate_threshold" mapstructure:"moderate_threshold"`
	HighThreshold         float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
}

// PipelineConfig bounds orchestrator concurrency.
type PipelineConfig struct {
	ClaimParallelism int           `yaml:"claim_parallelism" mapstructure:"claim_parallelism"`
	MaxClaims        int           `yaml:"max_claims" mapstructure:"max_claims"` // claims verified per job
	JobTimeout       time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
}

// ProgressConfig bounds the publisher's buffers.
type ProgressConfig struct {
	BacklogSize      int `yaml:"backlog_size" mapstructure:"backlog_size"`           // replayed to late subscribers
	SubscriberBuffer int `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"` // per-subscriber channel, drop-oldest on overflow
}

// CacheConfig configures the evidence cache layers.
type CacheConfig struct {
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// DefaultConfig returns the built-in defaults. Reputation priors follow
// well-known science, government, news, and knowledge-base domains.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "",
			Timeout:   60,
			MaxTokens: 1200,
		},
		Search: SearchConfig{
			Endpoint:       "https://api.search.brave.com/res/v1/web/search",
			PerQueryCount:  4,
			RPS:            1.0,
			Burst:          2,
			MaxRetries:     4,
			BackoffBaseMs:  250,
			TimeoutSeconds: 15,
			UserAgent:      "factcheck/0.1 (+https://github.com/agentra/factcheck)",
		},
		Retrieval: RetrievalConfig{
			MaxQueries:          5,
			PerClaimConcurrency: 3,
			MaxEvidence:         10,
		},
		Trust: TrustConfig{
			Floor:     0.35,
			Ceiling:   0.95,
			HighTrust: 0.85,
			Reputation: map[string]float64{
				"nasa.gov":           1.00,
				"who.int":            0.98,
				"cdc.gov":            0.98,
				"esa.int":            0.96,
				"nih.gov":            0.96,
				"noaa.gov":           0.95,
				"nature.com":         0.95,
				"sciencedirect.com":  0.93,
				"reuters.com":        0.93,
				"apnews.com":         0.92,
				"bbc.com":            0.92,
				"nytimes.com":        0.91,
				"washingtonpost.com": 0.90,
				"theguardian.com":    0.90,
				"britannica.com":     0.88,
				"wikipedia.org":      0.85,
			},
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.80,
			PromoteMargin:       0.10,
		},
		Debate: DebateConfig{
			MaxCrossRounds:        2,
			RepetitionThreshold:   0.85,
			MinIndependentDomains: 2,
			LowCeiling:            0.40,
			ModerateThreshold:     0.60,
			HighThreshold:         0.75,
		},
		Pipeline: PipelineConfig{
			ClaimParallelism: 4,
			MaxClaims:        6,
			JobTimeout:       5 * time.Minute,
		},
		Progress: ProgressConfig{
			BacklogSize:      64,
			SubscriberBuffer: 16,
		},
		Cache: CacheConfig{
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
	}
}
