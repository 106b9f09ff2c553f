// Package runner executes one populator run for a data file type:
// setup, load-or-build the inventory, publish, summarize.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fileevent-populator/internal/blob"
	"github.com/fileevent-populator/internal/classifier"
	"github.com/fileevent-populator/internal/config"
	"github.com/fileevent-populator/internal/inventory"
	"github.com/fileevent-populator/internal/metrics"
	"github.com/fileevent-populator/internal/publisher"
	"github.com/fileevent-populator/internal/store"
)

// ErrSourceUnavailable is returned when the source root cannot be listed.
var ErrSourceUnavailable = inventory.ErrSourceUnavailable

// Summary describes a finished run
type Summary struct {
	RunID        string              `json:"run_id"`
	DataFileType string              `json:"data_file_type"`
	Source       string              `json:"source"`
	CacheFile    string              `json:"cache_file"`
	FromCache    bool                `json:"from_cache"`
	AuditFile    string              `json:"audit_file"`
	Result       publisher.RunResult `json:"result"`
	Duration     time.Duration       `json:"duration"`
}

// Options carries collaborators that outlive a single run
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
	// Source overrides the source built from SOURCE_LOCATION.
	Source inventory.Source
}

// Runner runs data file types against one configuration
type Runner struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	source  inventory.Source
}

// New creates a runner
func New(cfg *config.Config, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Runner{
		cfg:     cfg,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		source:  opts.Source,
	}
}

// Run executes one run. Setup failures are returned before any event is
// published; once publishing starts a Summary is always returned.
func (r *Runner) Run(ctx context.Context, dataFileType string) (*Summary, error) {
	started := time.Now()
	runTime := r.now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Str("data_file_type", dataFileType).Logger()

	logger.Info().Msg("Run started")

	dft, err := r.cfg.DataFileType(dataFileType)
	if err != nil {
		return nil, err
	}

	cls, err := classifier.New(dft.FilenamePattern)
	if err != nil {
		return nil, config.NewConfigurationError(dataFileType, "FILENAME_PATTERN", err.Error())
	}

	policy, err := inventory.ParseDatePolicy(r.cfg.MarketDateSource)
	if err != nil {
		return nil, config.NewConfigurationError("", "MARKET_DATE_SOURCE", err.Error())
	}

	src, err := r.newSource(dft.SourceLocation)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("source", src.Location()).
		Str("pattern", dft.FilenamePattern).
		Int("max_depth", r.cfg.MaxSubfolderDepth).
		Str("market_date_source", string(policy)).
		Bool("use_cached", r.cfg.UseCached).
		Msg("Configuration resolved")

	cache := inventory.NewCache(src, r.cfg.CacheFilePath(dataFileType), inventory.BuildOptions{
		MaxDepth: r.cfg.MaxSubfolderDepth,
		Policy:   policy,
		Patterns: dft.FilePatterns,
		Now:      r.now,
	}, logger)

	snapshot, err := cache.LoadOrBuild(ctx, r.cfg.UseCached)
	if err != nil {
		return nil, fmt.Errorf("build inventory: %w", err)
	}
	r.metrics.SetInventory(dataFileType, snapshot.Len(), cache.Reused())

	gateway, err := r.openGateway(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer gateway.Close()

	audit, err := publisher.OpenAudit(r.cfg.AuditFileFolder, dataFileType, runTime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := audit.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close audit file")
		}
	}()

	pub := publisher.New(publisher.Options{
		DataFileType: dataFileType,
		Classifier:   cls,
		Gateway:      gateway,
		Event:        r.cfg.Event,
		Audit:        audit,
		Metrics:      r.metrics,
		Logger:       logger,
		Now:          r.now,
	})
	result := pub.Run(ctx, snapshot.Records)

	summary := &Summary{
		RunID:        runID,
		DataFileType: dataFileType,
		Source:       src.Location(),
		CacheFile:    cache.Path(),
		FromCache:    cache.Reused(),
		AuditFile:    audit.Path(),
		Result:       result,
		Duration:     time.Since(started),
	}

	r.metrics.ObserveRun(dataFileType, summary.Duration, r.now())
	if r.cfg.MetricsTextfile != "" {
		if err := r.metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
			logger.Error().Err(err).Msg("Failed to write metrics textfile")
		}
	}

	logger.Info().
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("unclassified", result.Unclassified).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Bool("from_cache", summary.FromCache).
		Dur("elapsed", summary.Duration).
		Msgf("Run finished in %.2fs", summary.Duration.Seconds())

	return summary, nil
}

func (r *Runner) newSource(location string) (inventory.Source, error) {
	if r.source != nil {
		return r.source, nil
	}

	if strings.HasPrefix(location, config.AzureBlobScheme) {
		client, err := blob.NewClient(r.cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
		src, err := blob.NewSource(location, client)
		if err != nil {
			return nil, config.NewConfigurationError("", "SOURCE_LOCATION", err.Error())
		}
		return src, nil
	}

	src, err := inventory.NewLocalSource(location)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (r *Runner) openGateway(ctx context.Context, logger zerolog.Logger) (*store.SQLGateway, error) {
	gateway, err := store.Open(store.Options{
		Driver:       r.cfg.SQL.Driver,
		DSN:          r.cfg.SQL.DataSourceName(),
		Table:        r.cfg.SQL.EventTable,
		TemplatePath: r.cfg.SQL.InsertTemplateFilePath,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	if r.cfg.SQL.Driver == config.DriverSQLite {
		if err := gateway.Migrate(ctx); err != nil {
			gateway.Close()
			return nil, err
		}
	}
	return gateway, nil
}

// IsSetupError reports whether err stopped a run before publishing.
func IsSetupError(err error) bool {
	var cfgErr *config.ConfigurationError
	return errors.As(err, &cfgErr) || errors.Is(err, ErrSourceUnavailable) || errors.Is(err, store.ErrStoreFailure)
}
