// Package publisher turns an inventory snapshot into file events.
package publisher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fileevent-populator/internal/classifier"
	"github.com/fileevent-populator/internal/config"
	"github.com/fileevent-populator/internal/inventory"
	"github.com/fileevent-populator/internal/metrics"
	"github.com/fileevent-populator/internal/progress"
	"github.com/fileevent-populator/internal/store"
)

// RunResult holds the counters of one run. Unclassified, Skipped and Failed
// are distinct non-success outcomes.
type RunResult struct {
	Inserted     int           `json:"inserted"`
	Skipped      int           `json:"skipped"`
	Unclassified int           `json:"unclassified"`
	Failed       int           `json:"failed"`
	Total        int           `json:"total"`
	Duration     time.Duration `json:"duration"`
}

// Options configures a Publisher. Audit and Metrics are optional.
type Options struct {
	DataFileType string
	Classifier   *classifier.Classifier
	Gateway      store.Gateway
	Event        config.EventConfig
	Audit        *AuditTrail
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Publisher classifies records and publishes one event per new identity
type Publisher struct {
	opts     Options
	progress *progress.Tracker
	logger   zerolog.Logger
}

// New creates a publisher
func New(opts Options) *Publisher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{
		opts:     opts,
		progress: progress.New(),
		logger: opts.Logger.With().
			Str("component", "EventPublisher").
			Str("data_file_type", opts.DataFileType).
			Logger(),
	}
}

// Run processes records in order. A record's store failure is counted and
// logged; it never stops the run.
func (p *Publisher) Run(ctx context.Context, records []inventory.FileRecord) RunResult {
	started := time.Now()
	result := RunResult{Total: len(records)}

	p.progress.Start(len(records))
	p.logger.Info().Int("total", len(records)).Msg("Publishing file events")

	for i := range records {
		record := &records[i]
		failed := p.publishRecord(ctx, record, &result)

		info := p.progress.Record(failed)
		p.logger.Info().
			Int("processed", info.Processed).
			Int("total", info.Total).
			Int("remaining", info.Remaining()).
			Int("failed", info.Failed).
			Float64("percent", info.Percentage()).
			Dur("eta", info.EstimatedETA).
			Msgf("Progress %d/%d", info.Processed, info.Total)
	}

	p.progress.Finish()
	result.Duration = time.Since(started)

	p.logger.Info().
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("unclassified", result.Unclassified).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Dur("duration", result.Duration).
		Msg("Publishing finished")

	return result
}

// publishRecord handles one record and reports whether it failed.
func (p *Publisher) publishRecord(ctx context.Context, record *inventory.FileRecord, result *RunResult) bool {
	logger := p.logger.With().Str("file", record.Filename).Str("location", record.FullPath).Logger()

	typeID, ok := p.opts.Classifier.Classify(record.Filename)
	if !ok {
		result.Unclassified++
		p.observe(metrics.OutcomeUnclassified)
		logger.Warn().Str("pattern", p.opts.Classifier.Pattern()).Msg("Unknown data file type, not publishing")
		return false
	}

	event := p.newEvent(record, typeID)
	outcome, err := p.opts.Gateway.Publish(ctx, event)
	if err != nil {
		result.Failed++
		p.observe(metrics.OutcomeFailed)
		p.audit(logger, record, AuditFailed)
		logger.Error().Err(err).Str("market_date", record.MarketDateString()).Msg("Failed to publish file event")
		return true
	}

	switch outcome {
	case store.OutcomeInserted:
		result.Inserted++
		p.observe(metrics.OutcomeInserted)
		p.audit(logger, record, AuditInserted)
		logger.Debug().Str("market_date", record.MarketDateString()).Int("type_id", int(typeID)).Msg("File event inserted")
	case store.OutcomeSkipped:
		result.Skipped++
		p.observe(metrics.OutcomeSkipped)
		p.audit(logger, record, AuditSkipped)
		logger.Debug().Str("market_date", record.MarketDateString()).Msg("File event already exists")
	}
	return false
}

func (p *Publisher) newEvent(record *inventory.FileRecord, typeID classifier.TypeID) *store.FileEvent {
	now := p.opts.Now()
	ev := p.opts.Event
	return &store.FileEvent{
		MarketDate:             record.MarketDate,
		DataFileTypeID:         int(typeID),
		FileName:               record.Filename,
		FileLocation:           record.FullPath,
		Step:                   ev.Step,
		StepRetryCount:         ev.StepRetryCount,
		Status:                 ev.Status,
		ServerName:             ev.ServerName,
		RecordCreationDate:     now,
		RecordModificationDate: now,
		RecordModificationUser: ev.ModificationUser,
		RecordSource:           ev.Source,
		RecordComment:          ev.Comment,
		IsManual:               ev.Manual(),
	}
}

func (p *Publisher) audit(logger zerolog.Logger, record *inventory.FileRecord, outcome string) {
	if p.opts.Audit == nil {
		return
	}
	if err := p.opts.Audit.Record(record.Filename, record.FullPath, outcome); err != nil {
		logger.Error().Err(err).Msg("Failed to write audit line")
	}
}

func (p *Publisher) observe(outcome string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.ObservePublish(p.opts.DataFileType, outcome)
	}
}
