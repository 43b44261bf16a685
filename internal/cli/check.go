package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agentra/factcheck/internal/cache"
	"github.com/agentra/factcheck/internal/debate"
	"github.com/agentra/factcheck/internal/evidence"
	"github.com/agentra/factcheck/internal/ingest"
	"github.com/agentra/factcheck/internal/llm"
	"github.com/agentra/factcheck/internal/model"
	"github.com/agentra/factcheck/internal/pipeline"
	"github.com/agentra/factcheck/internal/progress"
	"github.com/agentra/factcheck/internal/retrieval"
	"github.com/agentra/factcheck/internal/search"
	"github.com/agentra/factcheck/internal/trust"
	"github.com/agentra/factcheck/internal/worker"
)

var (
	inputText    string
	inputURL     string
	inputImage   string
	inputAudio   string
	inputVideo   string
	checkTimeout time.Duration
	outputJSON   bool
	llmProvider  string
	llmModel     string
	noCache      bool
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a claim and stream the debate",
	Long: `Check runs the full verification pipeline on one input:
- Normalize the input to text (inline text, URL, image, or audio)
- Extract atomic claims
- Retrieve and credibility-score web evidence per claim
- Run the Analyst/Skeptic/Judge debate
- Print the calibrated verdict

Example:
  factcheck check --text "The Perseverance rover landed on Mars in 2021"
  factcheck check --url https://example.com/article
  factcheck check --image ./screenshot.png --json
  factcheck check --text "..." --llm-provider ollama --llm-model llama3`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Input flags; exactly one modality is usually set, priority is
	// text, url, audio, image when several are.
	checkCmd.Flags().StringVar(&inputText, "text", "", "claim text to verify")
	checkCmd.Flags().StringVar(&inputURL, "url", "", "article URL to verify")
	checkCmd.Flags().StringVar(&inputImage, "image", "", "image path (OCR)")
	checkCmd.Flags().StringVar(&inputAudio, "audio", "", "audio path (transcription)")
	checkCmd.Flags().StringVar(&inputVideo, "video", "", "video path (keyframe notes)")

	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Minute, "overall verification timeout")
	checkCmd.Flags().BoolVar(&outputJSON, "json", false, "print the full result as JSON")
	checkCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the evidence cache (force fresh retrieval)")

	// LLM flags
	checkCmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, ollama)")
	checkCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	service, logger, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	input := model.Input{
		Text:      inputText,
		URL:       inputURL,
		ImagePath: inputImage,
		AudioPath: inputAudio,
		VideoPath: inputVideo,
	}

	jobID, err := service.Submit(input)
	if err != nil {
		return err
	}

	events, unsubscribe, err := service.Subscribe(jobID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	go func() {
		for event := range events {
			if verbose {
				fmt.Fprintf(os.Stderr, "[%s] %s %s\n", event.Stage, event.ClaimID, event.Message)
			} else if event.ClaimID == "" {
				fmt.Fprintf(os.Stderr, "⚙️  %s\n", event.Message)
			}
		}
	}()

	result, err := service.Wait(ctx, jobID)
	if err != nil {
		_ = service.Cancel(jobID, "timeout")
		return fmt.Errorf("verification did not finish: %w", err)
	}

	if outputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printResult(result)
	if result.Status == model.JobFailed {
		return fmt.Errorf("verification failed: %s", result.FailureReason)
	}
	return nil
}

func printResult(result *model.JobResult) {
	fmt.Println()
	if result.Status == model.JobFailed {
		fmt.Printf("✗ FAILED: %s\n", result.FailureReason)
		return
	}

	fmt.Printf("Verdict: %s (confidence %.2f)\n", result.Verdict.Label, result.Verdict.Confidence)
	fmt.Printf("  %s\n", result.Verdict.Rationale)
	fmt.Println()

	for _, claim := range result.Claims {
		marker := "?"
		if claim.Verdict != nil {
			switch claim.Verdict.Label {
			case model.LabelTrue:
				marker = "✓"
			case model.LabelFake:
				marker = "✗"
			}
		}
		fmt.Printf("%s %s\n", marker, claim.Text)
		if claim.Verdict != nil {
			fmt.Printf("    %s (%.2f), %d evidence items\n",
				claim.Verdict.Label, claim.Verdict.Confidence, len(claim.Evidence))
		}
		for _, note := range claim.Notes {
			fmt.Printf("    note: %s\n", note)
		}
	}
	fmt.Println()
}

// buildService wires the full pipeline from configuration. Configuration
// hierarchy: flags, FACTCHECK_* environment, config file, defaults.
func buildService() (*pipeline.Service, *zap.Logger, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	// LLM provider; flags override the config file.
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return nil, nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	if provider == nil {
		return nil, nil, fmt.Errorf("a reasoning provider is required (set llm.provider)")
	}

	// Search capability.
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("BRAVE_API_KEY")
	}
	if cfg.Search.APIKey == "" {
		return nil, nil, fmt.Errorf("BRAVE_API_KEY environment variable not set")
	}
	limiter := worker.NewSearchLimiter(cfg.Search.RPS, cfg.Search.Burst)
	searcher := search.NewBraveClient(cfg.Search, limiter, logger)

	fetcher := ingest.NewHTTPPageFetcher(
		time.Duration(cfg.Search.TimeoutSeconds)*time.Second, cfg.Search.UserAgent, 2_000_000)
	if cfg.Search.EnrichPages {
		robots := search.NewRobotsChecker(cfg.Search.UserAgent, time.Duration(cfg.Search.TimeoutSeconds)*time.Second)
		searcher.WithEnricher(search.NewEnricher(robots, fetcher, limiter, logger))
	}

	// Evidence store over the layered cache.
	var store *evidence.Store
	table := trust.NewTable(cfg.Trust)
	if noCache {
		// Process-local cache only, so nothing persists across runs.
		store = evidence.NewStore(cache.NewMemoryCache(time.Minute, time.Minute), table, cfg.Dedup, time.Minute, logger)
	} else {
		layered := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cacheDir(cfg), cfg.Cache.DiskTTL)
		store = evidence.NewStore(layered, table, cfg.Dedup, cfg.Cache.MemoryTTL, logger)
	}

	planner := retrieval.NewPlanner(provider, searcher, store, cfg.Retrieval, logger)
	engine := debate.NewEngine(provider, cfg.Debate, cfg.Trust.HighTrust, logger)
	publisher := progress.NewPublisher(cfg.Progress.BacklogSize, cfg.Progress.SubscriberBuffer, logger)

	normalizer := ingest.NewNormalizer(nil, nil, nil, fetcher, logger)

	return pipeline.NewService(cfg, normalizer, provider, planner, engine, publisher, logger), logger, nil
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func cacheDir(cfg *model.Config) string {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".factcheck-cache"
	}
	return home + "/.factcheck/cache"
}
