package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentra/factcheck/internal/model"
)

var (
	outputDir    string
	batchTimeout time.Duration
	maxInFlight  int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify multiple claims from a file",
	Long: `Batch verifies claims concurrently:
- Read claims from the input file (one per line, # comments skipped)
- Run the full pipeline per claim with a bounded number in flight
- Write one JSON result per claim into the output directory
- Print a per-claim verdict summary

Example:
  factcheck batch claims.txt
  factcheck batch claims.txt --in-flight 4 --output-dir ./results
  factcheck batch claims.txt --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&maxInFlight, "in-flight", 2, "claims verified concurrently")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./factcheck-results", "output directory for per-claim results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	claims, err := readClaims(file)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return fmt.Errorf("no claims in %s", file)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	service, logger, err := buildService()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fmt.Fprintf(os.Stderr, "⚙️  Verifying %d claims (%d in flight)...\n\n", len(claims), maxInFlight)

	// Jobs run asynchronously inside the service; the semaphore only
	// bounds how many are open at once.
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	sem := make(chan struct{}, maxInFlight)
	results := make([]*model.JobResult, len(claims))
	errs := make([]error, len(claims))
	done := make(chan int)

	for i, claim := range claims {
		go func(i int, claim string) {
			defer func() { done <- i }()
			sem <- struct{}{}
			defer func() { <-sem }()

			jobID, err := service.Submit(model.Input{Text: claim})
			if err != nil {
				errs[i] = err
				return
			}
			result, err := service.Wait(ctx, jobID)
			if err != nil {
				_ = service.Cancel(jobID, "batch timeout")
				errs[i] = err
				return
			}
			results[i] = result
		}(i, claim)
	}
	for range claims {
		<-done
	}

	successCount := 0
	failureCount := 0
	for i, claim := range claims {
		if errs[i] != nil || results[i] == nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", truncate(claim, 60), errs[i])
			continue
		}
		result := results[i]
		if result.Status == model.JobFailed {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", truncate(claim, 60), result.FailureReason)
			continue
		}
		successCount++

		path := filepath.Join(outputDir, fmt.Sprintf("claim-%03d.json", i+1))
		if err := writeResult(path, result); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write result: %v\n", truncate(claim, 60), err)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %s (%.2f)\n",
			truncate(claim, 60), result.Verdict.Label, result.Verdict.Confidence)
	}

	fmt.Fprintf(os.Stderr, "\n  Total:     %d claims\n", len(claims))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n\n", outputDir)

	return nil
}

// readClaims loads one claim per line, skipping blanks and # comments.
func readClaims(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claims file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var claims []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		claims = append(claims, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read claims file: %w", err)
	}
	return claims, nil
}

func writeResult(path string, result *model.JobResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
