// Package broker runs TOPSIS calculations for stored projects: it loads the
// project, computes, persists the result, records metrics and publishes the
// outcome. It also serves calculation requests from NATS and can periodically
// recalculate projects that changed since their last run.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Ranker/internal/config"
	"github.com/MikeSquared-Agency/Ranker/internal/hermes"
	"github.com/MikeSquared-Agency/Ranker/internal/metrics"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

// ErrLimit is returned when a problem exceeds the configured size limits.
var ErrLimit = errors.New("broker: problem exceeds configured limits")

type LimitError struct {
	Dimension string
	Count     int
	Max       int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %d %s (max %d)", ErrLimit, e.Count, e.Dimension, e.Max)
}

func (e *LimitError) Unwrap() error { return ErrLimit }

// staleBatch bounds how many projects one recalculation tick picks up.
const staleBatch = 50

type Broker struct {
	store   store.Store
	hermes  hermes.Client
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  *slog.Logger

	// skipped remembers projects whose last recalculation was rejected as
	// invalid, keyed to the updated_at seen then. They are retried once edited.
	skippedMu sync.Mutex
	skipped   map[uuid.UUID]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a broker. h and m may be nil.
func New(s store.Store, h hermes.Client, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		store:   s,
		hermes:  h,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		skipped: make(map[uuid.UUID]time.Time),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the recalculation loop when it is enabled in config.
func (b *Broker) Start(ctx context.Context) {
	if !b.cfg.Recalc.Enabled {
		return
	}
	b.wg.Add(1)
	go b.recalcLoop(ctx)
}

func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *Broker) recalcLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.recalculateStale(ctx)
		}
	}
}

// recalculateStale calculates every stale project and returns how many succeeded.
func (b *Broker) recalculateStale(ctx context.Context) int {
	projects, err := b.store.ListStaleProjects(ctx, staleBatch)
	if err != nil {
		b.logger.Error("failed to list stale projects", "error", err)
		return 0
	}
	if len(projects) == 0 {
		return 0
	}

	b.logger.Info("recalculating stale projects", "count", len(projects))
	done := 0
	for _, p := range projects {
		if b.isSkipped(p) {
			continue
		}
		if _, err := b.Calculate(ctx, p.ID); err != nil {
			if Rule(err) != "" {
				b.skip(p)
			}
			continue
		}
		done++
	}
	return done
}

func (b *Broker) isSkipped(p *store.Project) bool {
	b.skippedMu.Lock()
	defer b.skippedMu.Unlock()
	at, ok := b.skipped[p.ID]
	if ok && !p.UpdatedAt.Equal(at) {
		delete(b.skipped, p.ID)
		return false
	}
	return ok
}

func (b *Broker) skip(p *store.Project) {
	b.skippedMu.Lock()
	b.skipped[p.ID] = p.UpdatedAt
	b.skippedMu.Unlock()
}

// Calculate runs TOPSIS over the stored project and persists the result.
// Returns store.ErrNotFound when the project does not exist.
func (b *Broker) Calculate(ctx context.Context, projectID uuid.UUID) (*store.Calculation, error) {
	if timeout := b.cfg.CalculationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()

	detail, err := store.LoadDetail(ctx, b.store, projectID)
	if err != nil {
		return nil, b.fail(projectID, start, fmt.Errorf("load project: %w", err))
	}
	if detail == nil {
		return nil, store.ErrNotFound
	}
	if err := b.checkLimits(len(detail.Alternatives), len(detail.Criteria)); err != nil {
		return nil, b.fail(projectID, start, err)
	}
	problem, err := store.BuildProblem(detail.Criteria, detail.Alternatives)
	if err != nil {
		return nil, b.fail(projectID, start, err)
	}
	b.metrics.ObserveProblem(len(problem.Alternatives), len(problem.Criteria))

	result, err := topsis.Compute(problem, topsis.WithObserver(b.observer("project_id", projectID)))
	if err != nil {
		return nil, b.fail(projectID, start, err)
	}

	calc := &store.Calculation{
		ProjectID:     projectID,
		Criteria:      criterionNames(problem),
		Alternatives:  alternativeNames(problem),
		Result:        result,
		LowConfidence: result.LowConfidence,
		DurationMs:    float64(time.Since(start).Microseconds()) / 1000,
		// The loaded updated_at, so edits made after LoadDetail leave the project stale.
		SourceUpdatedAt: detail.UpdatedAt,
	}
	if err := b.store.SaveCalculation(ctx, calc); err != nil {
		return nil, b.fail(projectID, start, fmt.Errorf("save calculation: %w", err))
	}

	elapsed := time.Since(start)
	b.metrics.ObserveCalculation(metrics.OutcomeOK, elapsed, result.LowConfidence)
	b.logger.Info("calculation completed",
		"project_id", projectID,
		"calculation_id", calc.ID,
		"alternatives", len(problem.Alternatives),
		"criteria", len(problem.Criteria),
		"duration_ms", elapsed.Milliseconds(),
		"low_confidence", result.LowConfidence,
	)
	b.logWarnings(result, "project_id", projectID)

	hermes.Publish(b.hermes, b.logger, hermes.SubjectCalculationCompleted(projectID.String()), hermes.CalculationCompletedEvent{
		ProjectID:     projectID.String(),
		CalculationID: calc.ID.String(),
		Ranking:       result.RankedNames(),
		LowConfidence: result.LowConfidence,
		DurationMs:    elapsed.Milliseconds(),
	})
	return calc, nil
}

// Evaluate computes an inline problem without persisting or publishing it.
func (b *Broker) Evaluate(p topsis.Problem) (*topsis.Result, error) {
	start := time.Now()
	if err := b.checkLimits(len(p.Alternatives), len(p.Criteria)); err != nil {
		b.metrics.ObserveCalculation(metrics.OutcomeInvalid, time.Since(start), false)
		return nil, err
	}
	result, err := topsis.Compute(p, topsis.WithObserver(b.observer("project_id", "inline")))
	if err != nil {
		b.metrics.ObserveCalculation(metrics.OutcomeInvalid, time.Since(start), false)
		b.logger.Info("inline calculation rejected", "error", err, "rule", Rule(err))
		return nil, err
	}
	b.metrics.ObserveProblem(len(p.Alternatives), len(p.Criteria))
	b.metrics.ObserveCalculation(metrics.OutcomeOK, time.Since(start), result.LowConfidence)
	b.logWarnings(result, "project_id", "inline")
	return result, nil
}

func (b *Broker) checkLimits(alternatives, criteria int) error {
	limits := b.cfg.Limits
	if limits.MaxAlternatives > 0 && alternatives > limits.MaxAlternatives {
		return &LimitError{Dimension: "alternatives", Count: alternatives, Max: limits.MaxAlternatives}
	}
	if limits.MaxCriteria > 0 && criteria > limits.MaxCriteria {
		return &LimitError{Dimension: "criteria", Count: criteria, Max: limits.MaxCriteria}
	}
	return nil
}

func (b *Broker) observer(args ...any) topsis.Observer {
	return func(stage topsis.Stage, _ *topsis.Result) {
		b.metrics.StageCompleted(stage)
		b.logger.Debug("stage completed", append(args, "stage", stage)...)
	}
}

func (b *Broker) logWarnings(r *topsis.Result, args ...any) {
	for _, w := range r.Warnings {
		b.logger.Info("calculation warning", append(args, "code", w.Code, "criterion", w.Criterion, "message", w.Message)...)
	}
}

// fail records a failed calculation and publishes it. It returns err unchanged.
func (b *Broker) fail(projectID uuid.UUID, start time.Time, err error) error {
	rule := Rule(err)
	outcome := metrics.OutcomeError
	if rule != "" {
		outcome = metrics.OutcomeInvalid
		b.logger.Info("calculation rejected", "project_id", projectID, "rule", rule, "error", err)
	} else {
		b.logger.Error("calculation failed", "project_id", projectID, "error", err)
	}
	b.metrics.ObserveCalculation(outcome, time.Since(start), false)

	hermes.Publish(b.hermes, b.logger, hermes.SubjectCalculationFailed(projectID.String()), hermes.CalculationFailedEvent{
		ProjectID: projectID.String(),
		Error:     err.Error(),
		Rule:      rule,
	})
	return err
}

// Rule names the input rule err violates, or "" when err is not an input error.
func Rule(err error) string {
	var ve *topsis.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.RuleName()
	case errors.Is(err, store.ErrMissingValue):
		return "missing_value"
	case errors.Is(err, ErrLimit):
		return "limit"
	}
	return ""
}

// SetupSubscriptions registers the NATS calculation request handler.
func (b *Broker) SetupSubscriptions() {
	if b.hermes == nil {
		return
	}

	err := b.hermes.Subscribe(hermes.SubjectCalculationRequest, func(_ string, data []byte) {
		var req hermes.CalculationRequestEvent
		if err := json.Unmarshal(data, &req); err != nil {
			b.logger.Warn("invalid calculation request event", "error", err)
			return
		}
		id, err := uuid.Parse(req.ProjectID)
		if err != nil {
			b.logger.Warn("invalid project id in calculation request", "project_id", req.ProjectID)
			return
		}
		b.logger.Info("calculation requested", "project_id", id, "source", req.Source)
		if _, err := b.Calculate(context.Background(), id); errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("calculation requested for unknown project", "project_id", id)
		}
	})
	if err != nil {
		b.logger.Error("failed to subscribe to calculation requests", "error", err)
	}
}

func criterionNames(p topsis.Problem) []string {
	names := make([]string, len(p.Criteria))
	for i, c := range p.Criteria {
		names[i] = c.Name
	}
	return names
}

func alternativeNames(p topsis.Problem) []string {
	names := make([]string, len(p.Alternatives))
	for i, a := range p.Alternatives {
		names[i] = a.Name
	}
	return names
}
