package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/clarus-labs/repricer/internal/cache"
	"github.com/clarus-labs/repricer/internal/categorizer"
	"github.com/clarus-labs/repricer/internal/config"
	"github.com/clarus-labs/repricer/internal/enhance"
	"github.com/clarus-labs/repricer/internal/estimate"
	"github.com/clarus-labs/repricer/internal/healthserver"
	"github.com/clarus-labs/repricer/internal/logging"
	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/pipeline"
	"github.com/clarus-labs/repricer/internal/resultstore"
	"github.com/clarus-labs/repricer/internal/schedule"
	"github.com/clarus-labs/repricer/internal/searchprovider"
	"github.com/clarus-labs/repricer/internal/trustpolicy"
	"github.com/clarus-labs/repricer/internal/urlresolver"
)

// Exit codes per spec section 6.3.
const (
	exitOK            = 0
	exitConfigError   = 2
	exitNoCredentials = 3
	exitCancelled     = 4
	exitProviderDown  = 5
)

var (
	errConfig       = errors.New("config error")
	errCredentials  = errors.New("no credentials")
	errCancelled    = errors.New("cancelled")
	errProviderDown = errors.New("provider hard-down and fallback disabled")
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errConfig):
		return exitConfigError
	case errors.Is(err, errCredentials):
		return exitNoCredentials
	case errors.Is(err, errCancelled):
		return exitCancelled
	case errors.Is(err, errProviderDown):
		return exitProviderDown
	case err != nil:
		return 1
	default:
		return exitOK
	}
}

var (
	configPath    string
	inputPath     string
	outputPath    string
	logStyle      string
	logLevel      string
	healthPort    int
	searchBaseURL string
	noFallback    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Price and depreciate a JSON array of inventory rows",
	Long: `Run the pricing pipeline over a JSON array of rows (spec section 6.1
input shape), emitting a JSON array of output records (section 6.2) to
--output.

Example:
  repricer run --config repricer.yaml --input rows.json --output results.json`,
	RunE: runPricing,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (optional; defaults applied otherwise)")
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to a JSON array of input rows (required)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "path to write the JSON array of output records (defaults to stdout)")
	runCmd.Flags().StringVar(&logStyle, "log-style", "terminal", "terminal, json, logfmt, or noop")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	runCmd.Flags().IntVar(&healthPort, "health-port", 0, "if nonzero, serve /healthz, /readyz, /metrics on this port")
	runCmd.Flags().StringVar(&searchBaseURL, "search-base-url", "", "shopping-search provider base URL (overrides REPRICER_SEARCH_BASE_URL)")
	runCmd.Flags().BoolVar(&noFallback, "no-fallback", false, "exit with code 5 if the search provider is hard-down on every row")

	viper.SetEnvPrefix("repricer")
	viper.AutomaticEnv()
}

func runPricing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}
	if inputPath == "" {
		return fmt.Errorf("%w: --input is required", errConfig)
	}

	logger := logging.New(&logging.Config{Style: logging.Style(logStyle), Level: logLevel})
	defer logger.Sync() //nolint:errcheck

	searchAPIKey := viper.GetString("search_api_key")
	llmAPIKey := viper.GetString("google_genai_api_key")
	if llmAPIKey == "" {
		llmAPIKey = os.Getenv("GOOGLE_GENAI_API_KEY")
	}
	if llmAPIKey == "" {
		return fmt.Errorf("%w: GOOGLE_GENAI_API_KEY (or REPRICER_GOOGLE_GENAI_API_KEY) is not set", errCredentials)
	}

	baseURL := searchBaseURL
	if baseURL == "" {
		baseURL = viper.GetString("search_base_url")
	}
	if baseURL == "" {
		return fmt.Errorf("%w: --search-base-url (or REPRICER_SEARCH_BASE_URL) is not set", errCredentials)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: llmAPIKey}))

	var hs *healthserver.Server
	if healthPort != 0 {
		hs = healthserver.Start(logger, healthPort, func() bool { return true })
		defer hs.Shutdown(context.Background()) //nolint:errcheck
	}

	rows, err := readRows(inputPath)
	if err != nil {
		return fmt.Errorf("%w: reading input: %v", errConfig, err)
	}

	pl := buildPipeline(cfg, g, baseURL, searchAPIKey)
	store := resultstore.New(24 * time.Hour)
	jobID := resultstore.NewJobID()

	logger.Info("starting job", zap.String("job_id", jobID), zap.Int("rows", len(rows)))

	start := time.Now()
	results := pl.ProcessBatch(ctx, rows, func(p schedule.Progress) {
		if p.Processed%25 == 0 || p.Processed == p.Total {
			logger.Info("progress",
				zap.Int("processed", p.Processed),
				zap.Int("total", p.Total),
				zap.Duration("elapsed", p.Elapsed))
		}
	})

	var providerDownCount int64
	for _, result := range results {
		failed := result.Status == model.StatusEstimated && result.PricingTier == model.TierFallback
		if failed && result.Trace.CandidatesChecked == 0 {
			providerDownCount++
		}
	}

	if ctx.Err() != nil {
		store.Put(jobID, results)
		return fmt.Errorf("%w: job %s stopped after %d/%d rows", errCancelled, jobID, countNonEmpty(results), len(rows))
	}

	store.Put(jobID, results)
	logger.Info("job complete", zap.String("job_id", jobID), zap.Duration("elapsed", time.Since(start)))

	if noFallback && providerDownCount == int64(len(rows)) && len(rows) > 0 {
		return fmt.Errorf("%w: job %s", errProviderDown, jobID)
	}

	return writeResults(results)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func readRows(path string) ([]model.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []model.Row
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse rows json: %w", err)
	}
	return rows, nil
}

func writeResults(results []model.PricingResult) error {
	data, err := sonic.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if outputPath == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func countNonEmpty(results []model.PricingResult) int {
	n := 0
	for _, r := range results {
		if r.Status != "" {
			n++
		}
	}
	return n
}

func buildPipeline(cfg *config.Config, g *genkit.Genkit, searchBaseURL, searchAPIKey string) *pipeline.Pipeline {
	descCache := cache.New[string](cfg.Cache.TTL(), cfg.Cache.Capacity)
	categoryCache := cache.New[model.Categorization](cfg.Cache.TTL(), cfg.Cache.Capacity)
	offerCache := cache.New[[]model.Offer](cfg.Cache.TTL(), cfg.Cache.Capacity)

	policy := trustpolicy.New(cfg.TrustedDomains, cfg.UntrustedPatterns, cfg.BlockedURLPatterns)

	enhancer := enhance.New(g, cfg.LLM.EnhancerModel, descCache)
	estimator := estimate.New(g, cfg.LLM.EstimatorModel, cfg.Estimator.DefaultPrice)
	cat := categorizer.New(g, cfg.LLM.CategoryModel, cfg.Categories, categoryCache)

	retry := searchprovider.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxMs) * time.Millisecond,
		Jitter:      time.Duration(cfg.Retry.JitterMs) * time.Millisecond,
	}
	if retry.MaxAttempts == 0 {
		retry = searchprovider.DefaultRetryConfig
	}

	rawProvider := searchprovider.NewHTTPProvider(searchBaseURL, searchAPIKey)
	provider := searchprovider.Decorate(rawProvider, retry, cfg.Pool.PerProviderConcurrency, offerCache)

	resolver := urlresolver.New(policy, 8*time.Second)

	return pipeline.New(cfg, enhancer, estimator, provider, resolver, policy, cat)
}
