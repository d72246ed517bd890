package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/gradeetl/internal/adapters/storage"
	"github.com/okian/gradeetl/pkg/logger"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxWait      = 2 * time.Minute
)

// BucketEnsurer is implemented by stagers that can create their container.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// SyncResult lists what a sync uploaded.
type SyncResult struct {
	Uploaded []string
	// Present counts local files already staged before the sync.
	Present int
}

// Syncer stages local files into the landing store and then runs the
// pipeline against it.
type Syncer struct {
	local        storage.Store
	remote       storage.Stager
	pipeline     *Pipeline
	pollInterval time.Duration
	maxWait      time.Duration
	logger       logger.Logger
}

// SyncOption applies a configuration option to the Syncer.
type SyncOption func(*Syncer)

// WithPollInterval sets how often the landing store is listed while waiting
// for uploads to show up.
func WithPollInterval(d time.Duration) SyncOption {
	return func(s *Syncer) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxWait bounds the total time spent waiting for uploads.
func WithMaxWait(d time.Duration) SyncOption {
	return func(s *Syncer) {
		if d > 0 {
			s.maxWait = d
		}
	}
}

// WithSyncLogger sets a custom logger for the syncer.
func WithSyncLogger(l logger.Logger) SyncOption {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSyncer returns a Syncer copying from local into remote. p may be nil
// when only staging is wanted.
func NewSyncer(local storage.Store, remote storage.Stager, p *Pipeline, opts ...SyncOption) *Syncer {
	s := &Syncer{
		local:        local,
		remote:       remote,
		pipeline:     p,
		pollInterval: defaultPollInterval,
		maxWait:      defaultMaxWait,
		logger:       logger.Get().Named("sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage ensures the landing container exists, uploads local files missing
// from it and waits until every local file is listed remotely.
func (s *Syncer) Stage(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	if e, ok := s.remote.(BucketEnsurer); ok {
		if err := e.EnsureBucket(ctx); err != nil {
			return res, err
		}
	}

	local, err := s.local.List(ctx)
	if err != nil {
		return res, err
	}
	remote, err := s.remote.List(ctx)
	if err != nil {
		return res, err
	}

	staged := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		staged[name] = struct{}{}
	}
	for _, name := range local {
		if _, ok := staged[name]; ok {
			res.Present++
			continue
		}
		data, err := s.local.Fetch(ctx, name)
		if err != nil {
			return res, err
		}
		if err := s.remote.Put(ctx, name, data); err != nil {
			return res, err
		}
		res.Uploaded = append(res.Uploaded, name)
	}
	s.logger.Info(ctx, "files staged",
		logger.Int("uploaded", len(res.Uploaded)),
		logger.Int("present", res.Present),
	)

	if err := s.await(ctx, local); err != nil {
		return res, err
	}
	return res, nil
}

// await polls the remote listing until it contains every name.
func (s *Syncer) await(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	backoff := retry.WithMaxDuration(s.maxWait, retry.NewConstant(s.pollInterval))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		listed, err := s.remote.List(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		have := make(map[string]struct{}, len(listed))
		for _, name := range listed {
			have[name] = struct{}{}
		}
		missing := 0
		for _, name := range names {
			if _, ok := have[name]; !ok {
				missing++
			}
		}
		if missing > 0 {
			s.logger.Debug(ctx, "waiting for staged files", logger.Int("missing", missing))
			return retry.RetryableError(fmt.Errorf("%w: %d of %d", ErrNotVisible, missing, len(names)))
		}
		return nil
	})
}

// Run stages local files and then runs the pipeline.
func (s *Syncer) Run(ctx context.Context) (SyncResult, Result, error) {
	staged, err := s.Stage(ctx)
	if err != nil {
		return staged, Result{State: StateFailed}, err
	}
	if s.pipeline == nil {
		return staged, Result{State: StateDone}, nil
	}
	res, err := s.pipeline.Run(ctx)
	return staged, res, err
}
