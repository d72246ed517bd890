// Package service runs the grade ETL: it lists new source files, transforms
// them on a worker pool and replaces the destination table in every sink.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/okian/gradeetl/internal/adapters/mq/queue"
	"github.com/okian/gradeetl/internal/adapters/mq/worker"
	"github.com/okian/gradeetl/internal/adapters/sink"
	"github.com/okian/gradeetl/internal/adapters/storage"
	"github.com/okian/gradeetl/internal/domain/dedupe"
	"github.com/okian/gradeetl/internal/domain/filter"
	"github.com/okian/gradeetl/internal/domain/merge"
	"github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/internal/domain/normalize"
	"github.com/okian/gradeetl/internal/domain/parser"
	"github.com/okian/gradeetl/pkg/logger"
	"github.com/okian/gradeetl/pkg/metrics"
)

const (
	defaultTable     = "grades"
	defaultQueueSize = 64
)

// State is a pipeline run state.
type State string

// Run states. Failed is reachable from any other state.
const (
	StateIdle         State = "idle"
	StateListing      State = "listing"
	StateFetching     State = "fetching"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// FailurePolicy decides what a fetch or parse failure does to the run.
type FailurePolicy string

// Failure policies.
const (
	// PolicyAbort fails the run before any sink is touched.
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip logs and counts the file, then continues without it.
	// Cancellation still fails the run.
	PolicySkip FailurePolicy = "skip"
)

// ParseFailurePolicy resolves a policy name. Empty means abort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// FileReport describes what happened to one listed file.
type FileReport struct {
	Name     string
	Bytes    int
	Parsed   int
	Accepted int
	Rejected map[string]int
	// Err is set when the file was skipped after a fetch or parse failure.
	Err error
}

// Result summarises one run.
type Result struct {
	RunID string
	State State
	Files []FileReport
	// Loaded is the size of the Record Set handed to the sinks.
	Loaded     int
	Rejected   int
	Duplicates int
	// Skipped counts listed files excluded by the include patterns or
	// because an earlier run loaded them.
	Skipped int
	// Processed lists the files whose records reached the sinks. A name
	// listed twice by the store appears twice.
	Processed []string
	// Committed lists the sinks whose table replace committed. On a sink
	// failure it shows which sinks already hold this run's records.
	Committed []string
}

// Pipeline orchestrates a single ETL run.
type Pipeline struct {
	store       storage.Store
	sinks       []sink.Sink
	table       string
	workerCount int
	queueSize   int
	policy      FailurePolicy
	processed   []string
	include     []string
	parser      *parser.Parser
	normalizer  *normalize.Normalizer
	logger      logger.Logger
	now         func() time.Time

	mu    sync.RWMutex
	state State
}

// New constructs a Pipeline with default configuration.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		table:       defaultTable,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		policy:      PolicyAbort,
		parser:      parser.New(),
		normalizer:  normalize.New(),
		logger:      logger.Get().Named("pipeline"),
		now:         time.Now,
		state:       StateIdle,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// State returns the current run state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run executes Listing, Fetching, Transforming and Loading once. The returned
// Result is populated as far as the run got, also on failure.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.now()
	res := Result{RunID: uuid.NewString(), State: StateIdle}
	log := p.logger.With(logger.String("run_id", res.RunID))

	err := p.run(ctx, log, &res)
	if err != nil {
		res.State = StateFailed
		log.Error(ctx, "run failed", logger.Strings("committed", res.Committed), logger.Error(err))
	} else {
		res.State = StateDone
		log.Info(ctx, "run finished",
			logger.Int("files", len(res.Processed)),
			logger.Int("loaded", res.Loaded),
			logger.Int("rejected", res.Rejected),
			logger.Int("duplicates", res.Duplicates),
		)
	}
	p.setState(res.State)
	metrics.RecordRun(string(res.State), p.now().Sub(start))
	return res, err
}

func (p *Pipeline) run(ctx context.Context, log logger.Logger, res *Result) error {
	if p.store == nil {
		return ErrNoStore
	}
	if _, err := ParseFailurePolicy(string(p.policy)); err != nil {
		return err
	}
	for _, pattern := range p.include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	names, err := p.list(ctx, log, res)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.Info(ctx, "no new files")
		return nil
	}

	batches, err := p.transform(ctx, log, names, res)
	if err != nil {
		return err
	}
	if len(res.Processed) == 0 {
		log.Warn(ctx, "every file failed, nothing to load")
		return nil
	}

	return p.load(ctx, log, batches, res)
}

// list returns the names to process in listing order.
func (p *Pipeline) list(ctx context.Context, log logger.Logger, res *Result) ([]string, error) {
	defer p.stage(StateListing)()

	listed, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordFilesListed(len(listed))

	// Only earlier runs count as seen. A name repeated in the listing is
	// offered again and merge keeps its first records.
	processed := dedupe.NewInMemoryDeduper(dedupe.WithKeys(p.processed))
	names := make([]string, 0, len(listed))
	for _, name := range listed {
		if !p.included(name) || processed.Seen(name) {
			res.Skipped++
			metrics.RecordFileSkipped()
			continue
		}
		names = append(names, name)
	}

	log.Info(ctx, "files listed",
		logger.Int("listed", len(listed)),
		logger.Int("new", len(names)),
		logger.Int("skipped", res.Skipped),
	)
	return names, nil
}

func (p *Pipeline) included(name string) bool {
	if len(p.include) == 0 {
		return true
	}
	for _, pattern := range p.include {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// transform fetches and transforms every file on the worker pool. Batches are
// indexed like names so the merge sees listing order.
func (p *Pipeline) transform(ctx context.Context, log logger.Logger, names []string, res *Result) ([][]model.Record, error) {
	defer p.stage(StateFetching)()

	batches := make([][]model.Record, len(names))
	reports := make([]FileReport, len(names))
	jobs := make([]queue.Job, len(names))
	for i, name := range names {
		jobs[i] = queue.Job{Index: i, Name: name}
		reports[i].Name = name
	}

	processor := worker.ProcessorFunc(func(ctx context.Context, job queue.Job) error {
		records, report, err := p.file(ctx, job.Name)
		report.Name = job.Name
		if err != nil {
			metrics.RecordFileFailed(failureReason(err))
			if p.policy == PolicySkip && !canceled(err) {
				log.Warn(ctx, "skipping file", logger.String("file", job.Name), logger.Error(err))
				report.Err = err
				reports[job.Index] = report
				return nil
			}
			reports[job.Index] = report
			return err
		}
		batches[job.Index] = records
		reports[job.Index] = report
		return nil
	})

	q := queue.NewInMemoryQueue(queue.WithCapacity(p.queueSize))
	err := worker.NewPool(min(p.workerCount, len(jobs)), q, processor).Run(ctx, jobs)
	res.Files = reports
	if err != nil {
		return nil, err
	}

	for _, r := range reports {
		res.Rejected += sumRejected(r.Rejected)
		if r.Err == nil {
			res.Processed = append(res.Processed, r.Name)
		}
	}
	return batches, nil
}

// file runs fetch, parse, normalize and filter for one file.
func (p *Pipeline) file(ctx context.Context, name string) ([]model.Record, FileReport, error) {
	data, err := p.store.Fetch(ctx, name)
	if err != nil {
		return nil, FileReport{}, err
	}
	p.setState(StateTransforming)

	rows, err := p.parser.Parse(name, data)
	if err != nil {
		return nil, FileReport{Bytes: len(data)}, err
	}

	records, report := filter.Rows(p.normalizer, rows)
	metrics.RecordFileProcessed(len(data))
	metrics.RecordRowsParsed(report.Parsed)
	metrics.RecordRowsAccepted(report.Accepted)
	for field, n := range report.Rejected {
		for range n {
			metrics.RecordRowRejected(field)
		}
	}

	return records, FileReport{
		Bytes:    len(data),
		Parsed:   report.Parsed,
		Accepted: report.Accepted,
		Rejected: report.Rejected,
	}, nil
}

// load merges the batches and replaces the table in each sink in order. The
// first failure stops the load; sinks after it are not touched.
func (p *Pipeline) load(ctx context.Context, log logger.Logger, batches [][]model.Record, res *Result) error {
	defer p.stage(StateLoading)()

	set, duplicates := merge.Merge(batches...)
	res.Loaded = set.Len()
	res.Duplicates = duplicates
	metrics.RecordDuplicates(duplicates)

	for i, s := range p.sinks {
		start := p.now()
		err := s.ReplaceTable(ctx, p.table, set)
		metrics.RecordSinkLatency(s.Name(), p.now().Sub(start))
		if err != nil {
			metrics.RecordSinkError(s.Name(), model.SinkErrorKind(err))
			log.Error(ctx, "sink failed",
				logger.String("sink", s.Name()),
				logger.Int("not_attempted", len(p.sinks)-i-1),
				logger.Error(err),
			)
			return err
		}
		metrics.RecordRecordsLoaded(s.Name(), set.Len())
		res.Committed = append(res.Committed, s.Name())
	}

	metrics.UpdateLastRunRecords(set.Len())
	return nil
}

// stage enters s and returns a func that records its duration.
func (p *Pipeline) stage(s State) func() {
	p.setState(s)
	start := p.now()
	return func() {
		metrics.RecordStageDuration(string(s), p.now().Sub(start))
	}
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failureReason(err error) string {
	switch {
	case canceled(err):
		return "canceled"
	case errors.Is(err, model.ErrStorage):
		return "fetch"
	case errors.Is(err, model.ErrParse):
		return "parse"
	default:
		return "other"
	}
}

func sumRejected(m map[string]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}
