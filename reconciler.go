package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the phase a run is in
type State int

const (
	StateFetching State = iota
	StateApplying
	StateDone
	StateAborted
	// StatePartiallyApplied means a sink write failed after the apply began;
	// the Result counters report what landed.
	StatePartiallyApplied
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateApplying:
		return "APPLYING"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	case StatePartiallyApplied:
		return "PARTIALLY_APPLIED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshotter stores a copy of the sink before destructive changes
type Snapshotter interface {
	Snapshot(ctx context.Context, runID string, header []string, rows []SinkRow) error
}

// Result summarizes one run
type Result struct {
	RunID    string
	State    State
	Plan     *Plan
	Pages    int
	Inserted int
	Updated  int
	Deleted  int
	Partial  bool
}

func (r *Result) String() string {
	unchanged, skipped := 0, 0
	if r.Plan != nil {
		unchanged, skipped = r.Plan.Unchanged, r.Plan.Skipped
	}
	return fmt.Sprintf("inserted=%d updated=%d deleted=%d unchanged=%d skipped=%d pages=%d",
		r.Inserted, r.Updated, r.Deleted, unchanged, skipped, r.Pages)
}

// Reconciler synchronizes a Source into a Sink keyed by an id column
type Reconciler struct {
	config      Config
	source      Source
	sink        Sink
	fields      *FieldMap
	logger      *zap.Logger
	snapshotter Snapshotter
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger; runs are silent by default
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSnapshotter archives the sink before deletes or a replace
func WithSnapshotter(s Snapshotter) Option {
	return func(r *Reconciler) {
		r.snapshotter = s
	}
}

// New creates a Reconciler. A nil config uses DefaultConfig.
func New(source Source, sink Sink, config *Config, opts ...Option) (*Reconciler, error) {
	if source == nil || sink == nil {
		return nil, fmt.Errorf("%w: source and sink are required", ErrMissingConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}

	cfg := *config
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DeleteStale && !source.Complete() {
		return nil, ErrFilteredDelete
	}

	r := &Reconciler{
		config: cfg,
		source: source,
		sink:   sink,
		fields: NewFieldMap(cfg.Mappings),
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run performs one reconciliation pass: read the sink, fetch every page,
// plan, then apply in bulk.
//
// When delete tracking is enabled a fetch failure aborts the run before
// anything is written. Otherwise the staged inserts and updates are applied
// and ErrPartialFetch is returned alongside the result.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), State: StateFetching}
	log := r.logger.With(zap.String("run_id", res.RunID))

	if r.config.IDColumn == "" {
		res.State = StateAborted
		return res, fmt.Errorf("%w: id column", ErrMissingConfig)
	}

	header, rows, err := r.sink.ReadAll(ctx)
	if err != nil {
		res.State = StateAborted
		return res, fmt.Errorf("failed to read sink: %w", err)
	}
	if len(header) > 0 && !contains(header, r.config.IDColumn) {
		res.State = StateAborted
		return res, fmt.Errorf("%w: %q", ErrIDColumnMissing, r.config.IDColumn)
	}
	log.Debug("sink loaded", zap.Int("rows", len(rows)), zap.Strings("header", header))

	plan, fetchErr := r.buildPlan(ctx, log, res, header, rows)
	res.Plan = plan
	if fetchErr != nil {
		if r.config.DeleteStale {
			res.State = StateAborted
			log.Error("fetch failed, aborting run", zap.Int("pages", res.Pages), zap.Error(fetchErr))
			return res, fmt.Errorf("%w: %w", ErrFetchAborted, fetchErr)
		}
		res.Partial = true
		log.Warn("fetch failed, applying staged changes", zap.Int("pages", res.Pages), zap.Error(fetchErr))
	}

	log.Info("plan ready",
		zap.Int("insert", len(plan.Inserts)),
		zap.Int("update", len(plan.Updates)),
		zap.Int("delete", len(plan.Deletes)),
		zap.Int("unchanged", plan.Unchanged),
		zap.Int("skipped", plan.Skipped),
		zap.Bool("complete", plan.Complete),
	)

	res.State = StateApplying
	if err := r.apply(ctx, log, res, plan, header, rows); err != nil {
		if errors.Is(err, ErrPartiallyApplied) {
			r.partiallyApplied(log, res, err)
		}
		return res, err
	}
	res.State = StateDone

	if res.Partial {
		return res, fmt.Errorf("%w: %w", ErrPartialFetch, fetchErr)
	}
	return res, nil
}

// Plan computes the reconciliation plan without writing to the sink
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	res := &Result{RunID: uuid.NewString(), State: StateFetching}
	if r.config.IDColumn == "" {
		return nil, fmt.Errorf("%w: id column", ErrMissingConfig)
	}
	header, rows, err := r.sink.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sink: %w", err)
	}
	if len(header) > 0 && !contains(header, r.config.IDColumn) {
		return nil, fmt.Errorf("%w: %q", ErrIDColumnMissing, r.config.IDColumn)
	}
	plan, err := r.buildPlan(ctx, r.logger, res, header, rows)
	if err != nil {
		if r.config.DeleteStale {
			return plan, fmt.Errorf("%w: %w", ErrFetchAborted, err)
		}
		return plan, fmt.Errorf("%w: %w", ErrPartialFetch, err)
	}
	return plan, nil
}

// Replace fetches the whole source and rewrites the sink from scratch. When
// the source yields no records the sink is left untouched.
func (r *Reconciler) Replace(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), State: StateFetching}
	log := r.logger.With(zap.String("run_id", res.RunID))

	plan := &Plan{Header: append([]string(nil), r.config.Headers...), WriteHeader: true}
	res.Plan = plan

	staged := newStaging()
	if err := r.fetchAll(ctx, log, res, plan, staged); err != nil {
		res.State = StateAborted
		return res, fmt.Errorf("%w: %w", ErrFetchAborted, err)
	}
	if !plan.Complete {
		res.State = StateAborted
		return res, fmt.Errorf("%w: page limit of %d reached", ErrFetchAborted, r.config.MaxPages)
	}
	plan.Inserts = staged.records()

	if len(plan.Inserts) == 0 {
		log.Warn("source returned no records, sink not updated")
		res.State = StateDone
		return res, nil
	}

	res.State = StateApplying
	if r.config.DryRun {
		log.Info("dry run, skipping replace", zap.Int("rows", len(plan.Inserts)))
		res.State = StateDone
		return res, nil
	}

	if r.snapshotter != nil {
		header, rows, err := r.sink.ReadAll(ctx)
		if err != nil {
			res.State = StateAborted
			return res, fmt.Errorf("failed to read sink: %w", err)
		}
		if err := r.snapshotter.Snapshot(ctx, res.RunID, header, rows); err != nil {
			res.State = StateAborted
			return res, fmt.Errorf("failed to snapshot sink: %w", err)
		}
	}

	if err := r.sink.Clear(ctx); err != nil {
		err = fmt.Errorf("%w: clear: %w", ErrPartiallyApplied, err)
		r.partiallyApplied(log, res, err)
		return res, err
	}
	values := make([][]interface{}, 0, len(plan.Inserts)+1)
	values = append(values, headerRow(plan.Header))
	for _, rec := range plan.Inserts {
		values = append(values, r.fields.Row(rec, plan.Header))
	}
	if err := r.sink.AppendRows(ctx, values); err != nil {
		err = fmt.Errorf("%w: sink cleared but rows not written: %w", ErrPartiallyApplied, err)
		r.partiallyApplied(log, res, err)
		return res, err
	}
	res.Inserted = len(plan.Inserts)
	res.State = StateDone
	log.Info("sink replaced", zap.Int("rows", res.Inserted))
	return res, nil
}

// buildPlan indexes the sink, pages through the source and classifies every
// seen id. The returned plan is always usable; a non-nil error means the
// fetch stopped early.
func (r *Reconciler) buildPlan(ctx context.Context, log *zap.Logger, res *Result, header []string, rows []SinkRow) (*Plan, error) {
	plan := &Plan{}
	if len(header) == 0 {
		plan.WriteHeader = true
		plan.Header = append([]string(nil), r.config.Headers...)
	} else {
		plan.Header = header
	}

	// 最後に出現した行がインデックスに残る
	index := make(map[string]SinkRow, len(rows))
	var shadowed []int
	for _, row := range rows {
		id := strings.TrimSpace(row.Values[r.config.IDColumn])
		if id == "" {
			continue
		}
		if prev, ok := index[id]; ok {
			shadowed = append(shadowed, prev.Index)
			plan.Duplicates++
		}
		index[id] = row
	}

	staged := newStaging()
	fetchErr := r.fetchAll(ctx, log, res, plan, staged)

	for _, id := range staged.order {
		rec := staged.latest[id]
		if row, ok := index[id]; ok {
			if r.needsUpdate(row, rec, plan.Header) {
				plan.Updates = append(plan.Updates, RowUpdate{Row: row.Index, ID: id, Record: rec})
			} else {
				plan.Unchanged++
			}
			continue
		}
		plan.Inserts = append(plan.Inserts, rec)
	}

	if fetchErr != nil {
		return plan, fetchErr
	}

	if r.config.DeleteStale {
		if !plan.Complete {
			log.Warn("page limit reached before the source was exhausted, skipping deletes",
				zap.Int("max_pages", r.config.MaxPages))
		} else {
			for id, row := range index {
				if !staged.seen(id) {
					plan.Deletes = append(plan.Deletes, row.Index)
				}
			}
			plan.Deletes = append(plan.Deletes, shadowed...)
			plan.sortDeletes()
		}
	}
	return plan, nil
}

// fetchAll pages through the source, staging filtered, de-duplicated records
func (r *Reconciler) fetchAll(ctx context.Context, log *zap.Logger, res *Result, plan *Plan, staged *staging) error {
	offset := 0
	for page := 0; page < r.config.MaxPages; page++ {
		if page > 0 && r.config.PageDelay > 0 {
			if err := r.sleep(ctx, r.config.PageDelay); err != nil {
				return err
			}
		}

		records, err := r.fetchPage(ctx, log, offset)
		if err != nil {
			return fmt.Errorf("page %d (offset %d): %w", page+1, offset, err)
		}
		res.Pages++
		log.Debug("page fetched", zap.Int("offset", offset), zap.Int("records", len(records)))

		if len(records) == 0 {
			plan.Complete = true
			return nil
		}

		if len(plan.Header) == 0 {
			plan.Header = DeriveHeader(records[0], r.config.Mappings, r.config.ExcludeColumns)
			if r.config.IDColumn != "" && !contains(plan.Header, r.config.IDColumn) {
				plan.Header = append([]string{r.config.IDColumn}, plan.Header...)
			}
		}

		for _, rec := range records {
			if rec == nil {
				plan.Skipped++
				continue
			}
			if r.config.Filter.Excludes(rec) {
				plan.Filtered++
				continue
			}
			if r.config.IDColumn == "" {
				staged.add(fmt.Sprintf("#%d", staged.len()), rec)
				continue
			}
			id := r.fields.ID(rec, r.config.IDColumn)
			if id == "" {
				plan.Skipped++
				continue
			}
			staged.add(id, rec)
		}

		offset += r.config.PageSize
	}
	return nil
}

// fetchPage fetches one page, retrying with a fixed delay
func (r *Reconciler) fetchPage(ctx context.Context, log *zap.Logger, offset int) ([]*Record, error) {
	var records []*Record
	var err error

	for i := 0; i <= r.config.MaxRetries; i++ {
		if i > 0 {
			log.Warn("retrying page", zap.Int("offset", offset), zap.Int("attempt", i), zap.Error(err))
			if serr := r.sleep(ctx, r.config.RetryDelay); serr != nil {
				return nil, serr
			}
		}

		records, err = r.source.Fetch(ctx, offset, r.config.PageSize)
		if err == nil {
			return records, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, err)
}

// needsUpdate applies the update policy to an existing row
func (r *Reconciler) needsUpdate(row SinkRow, rec *Record, header []string) bool {
	if r.config.UpdatePolicy == UpdateAlways {
		return true
	}

	if col := r.config.VersionColumn; col != "" {
		stored, ok1 := ParseTime(row.Values[col])
		incoming, ok2 := ParseTime(CellValue(r.fields.Resolve(rec, col)))
		if ok1 && ok2 && incoming.Before(stored) {
			return false
		}
	}

	cols := r.config.CompareColumns
	if len(cols) == 0 {
		cols = header
	}
	for _, col := range cols {
		if !contains(header, col) {
			continue
		}
		if row.Values[col] != CellValue(r.fields.Resolve(rec, col)) {
			return true
		}
	}
	return false
}

// apply writes the plan: one batch update, one delete call, one append.
//
// Updates and deletes address rows by the indices read before the apply, so
// they run before anything is appended. The Sheets append call inserts after
// the first contiguous block of data, which shifts every row below a blank
// gap.
func (r *Reconciler) apply(ctx context.Context, log *zap.Logger, res *Result, plan *Plan, header []string, rows []SinkRow) error {
	if r.config.DryRun {
		log.Info("dry run, nothing written")
		return nil
	}
	if plan.Empty() {
		log.Info("sink already up to date")
		return nil
	}

	if r.snapshotter != nil && len(plan.Deletes) > 0 {
		if err := r.snapshotter.Snapshot(ctx, res.RunID, header, rows); err != nil {
			res.State = StateAborted
			return fmt.Errorf("failed to snapshot sink: %w", err)
		}
	}

	if len(plan.Updates) > 0 {
		updates := make([]RowValues, 0, len(plan.Updates))
		for _, u := range plan.Updates {
			updates = append(updates, RowValues{Row: u.Row, Values: r.fields.Row(u.Record, plan.Header)})
		}
		if err := r.sink.BatchUpdate(ctx, updates); err != nil {
			return fmt.Errorf("%w: update of %d rows failed: %w", ErrPartiallyApplied, len(updates), err)
		}
		res.Updated = len(updates)
	}

	if len(plan.Deletes) > 0 {
		if err := r.sink.DeleteRows(ctx, plan.Deletes); err != nil {
			return fmt.Errorf("%w: updated %d, delete of %d rows failed: %w",
				ErrPartiallyApplied, res.Updated, len(plan.Deletes), err)
		}
		res.Deleted = len(plan.Deletes)
	}

	if len(plan.Inserts) > 0 || (plan.WriteHeader && len(plan.Header) > 0) {
		values := make([][]interface{}, 0, len(plan.Inserts)+1)
		if plan.WriteHeader {
			values = append(values, headerRow(plan.Header))
		}
		for _, rec := range plan.Inserts {
			values = append(values, r.fields.Row(rec, plan.Header))
		}
		if err := r.sink.AppendRows(ctx, values); err != nil {
			return fmt.Errorf("%w: updated %d, deleted %d, append of %d rows failed: %w",
				ErrPartiallyApplied, res.Updated, res.Deleted, len(plan.Inserts), err)
		}
		res.Inserted = len(plan.Inserts)
	}

	log.Info("plan applied",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
	)
	return nil
}

// partiallyApplied records a sink write that failed mid-apply
func (r *Reconciler) partiallyApplied(log *zap.Logger, res *Result, err error) {
	res.State = StatePartiallyApplied
	log.Error("plan partially applied",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Error(err),
	)
}

// staging keeps the latest record per id in order of first appearance
type staging struct {
	order  []string
	latest map[string]*Record
}

func newStaging() *staging {
	return &staging{latest: make(map[string]*Record)}
}

func (s *staging) add(id string, rec *Record) {
	if _, ok := s.latest[id]; !ok {
		s.order = append(s.order, id)
	}
	s.latest[id] = rec
}

func (s *staging) seen(id string) bool {
	_, ok := s.latest[id]
	return ok
}

func (s *staging) len() int {
	return len(s.order)
}

func (s *staging) records() []*Record {
	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.latest[id])
	}
	return out
}

func headerRow(header []string) []interface{} {
	row := make([]interface{}, len(header))
	for i, col := range header {
		row[i] = col
	}
	return row
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
