package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/unwind/pkg/cache"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/usage"
)

// Risk history bounds in days
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

const (
	// DefaultFreshWindow is how long after an invalidation dashboards are
	// read from the primary and left uncached
	DefaultFreshWindow = 5 * time.Second

	// DefaultComputeTimeout bounds one shared dashboard computation
	DefaultComputeTimeout = 10 * time.Second
)

// UsageReader loads a user's entries for an inclusive date range
type UsageReader interface {
	ListRange(ctx context.Context, userID int64, from, to usage.Date) ([]usage.Entry, error)
}

// PrimaryReader is implemented by readers that can skip read replicas.
// Reads that follow a write use it so they observe that write.
type PrimaryReader interface {
	ListRangePrimary(ctx context.Context, userID int64, from, to usage.Date) ([]usage.Entry, error)
}

// SnapshotReader loads persisted daily snapshots, oldest first
type SnapshotReader interface {
	ListSnapshots(ctx context.Context, userID int64, from, to usage.Date) ([]Snapshot, error)
}

// Recorder receives computation and cache events
type Recorder interface {
	RecordComputation(ctx context.Context, level string, duration time.Duration)
	RecordCacheLookup(ctx context.Context, hit bool)
}

// RiskReport is the risk-score endpoint payload
type RiskReport struct {
	RiskScore           RiskScore        `json:"riskScore"`
	Recommendations     []Recommendation `json:"recommendations"`
	MotivationalMessage string           `json:"motivationalMessage"`
}

// Service provides analytics business logic on top of stored usage
type Service struct {
	engine    atomic.Pointer[Engine]
	usage     UsageReader
	snapshots SnapshotReader
	cache     cache.Cache
	cacheTTL  time.Duration
	recorders []Recorder
	logger    *observability.Logger

	group          singleflight.Group
	freshWindow    time.Duration
	computeTimeout time.Duration
	now            func() time.Time

	users sync.Map // int64 -> *userState
}

// userState tracks invalidations of one user's dashboards. The generation
// is bumped on every invalidation so in-flight computations don't
// repopulate the cache with pre-write results.
type userState struct {
	generation    atomic.Uint64
	invalidatedAt atomic.Int64 // unix nanos
}

// Option configures a Service
type Option func(*Service)

// WithCache caches computed dashboards
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithSnapshots enables risk history
func WithSnapshots(r SnapshotReader) Option {
	return func(s *Service) {
		s.snapshots = r
	}
}

// WithRecorder adds a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

// WithFreshWindow sets how long after an invalidation dashboards bypass
// read replicas and the cache. Zero disables the window.
func WithFreshWindow(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.freshWindow = d
		}
	}
}

// WithComputeTimeout bounds a shared dashboard computation
func WithComputeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.computeTimeout = d
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new analytics service
func NewService(engine *Engine, reader UsageReader, opts ...Option) *Service {
	s := &Service{
		usage:          reader,
		logger:         observability.NewLogger(observability.InfoLevel, nil),
		freshWindow:    DefaultFreshWindow,
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
	}
	if engine == nil {
		engine = defaultEngine
	}
	s.engine.Store(engine)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the active engine
func (s *Service) Engine() *Engine {
	return s.engine.Load()
}

// SetPolicy swaps the active policy and drops every cached dashboard
func (s *Service) SetPolicy(ctx context.Context, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	s.engine.Store(NewEngine(policy))

	s.users.Range(func(_, v any) bool {
		v.(*userState).generation.Add(1)
		return true
	})
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, dashboardPrefix); err != nil {
			return fmt.Errorf("failed to purge dashboards: %w", err)
		}
	}
	return nil
}

// Dashboard returns the user's dashboard for the calendar date of now
func (s *Service) Dashboard(ctx context.Context, userID int64, now time.Time) (*Dashboard, error) {
	key := dashboardKey(userID, usage.DateOf(now))

	if d, ok := s.cached(ctx, key); ok {
		return d, nil
	}

	// waiters share one computation, so it must not die with whichever
	// caller started it
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout)
		defer cancel()
		return s.compute(ctx, userID, now, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dashboard), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the weekly and monthly windows
func (s *Service) Stats(ctx context.Context, userID int64, now time.Time) (*Stats, error) {
	d, err := s.Dashboard(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &Stats{Weekly: d.WeeklyStats, Monthly: d.MonthlyStats}, nil
}

// RiskScore returns the score, recommendations and motivational message
func (s *Service) RiskScore(ctx context.Context, userID int64, now time.Time) (*RiskReport, error) {
	d, err := s.Dashboard(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return &RiskReport{
		RiskScore:           d.RiskScore,
		Recommendations:     d.Recommendations,
		MotivationalMessage: d.MotivationalMessage,
	}, nil
}

// Invalidate drops the user's cached dashboards. Call after every usage write.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	state := s.state(userID)
	state.invalidatedAt.Store(s.now().UnixNano())
	state.generation.Add(1)
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeletePrefix(ctx, userPrefix(userID)); err != nil {
		return fmt.Errorf("failed to invalidate dashboards for user %d: %w", userID, err)
	}
	return nil
}

// RiskHistory returns persisted snapshots for the last days days ending on
// the calendar date of now. days <= 0 uses the default; the maximum is a year.
func (s *Service) RiskHistory(ctx context.Context, userID int64, days int, now time.Time) ([]Snapshot, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}
	if s.snapshots == nil {
		return []Snapshot{}, nil
	}

	today := usage.DateOf(now)
	snapshots, err := s.snapshots.ListSnapshots(ctx, userID, today.AddDays(-(days - 1)), today)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk history: %w", err)
	}
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	return snapshots, nil
}

func (s *Service) compute(ctx context.Context, userID int64, now time.Time, key string) (_ *Dashboard, err error) {
	ctx, span := observability.StartSpan(ctx, "analytics.compute_dashboard", attribute.Int64("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	state := s.state(userID)
	gen := state.generation.Load()
	fresh := s.recentlyInvalidated(state)

	today := usage.DateOf(now)
	entries, err := s.listRange(ctx, userID, today.AddDays(-(HistoryDays - 1)), today, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for user %d: %w", userID, err)
	}

	d, err := s.Engine().Dashboard(entries, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dashboard for user %d: %w", userID, err)
	}
	span.SetAttributes(
		attribute.Int("usage.entries", len(entries)),
		attribute.String("risk.level", string(d.RiskScore.Level)),
		attribute.Bool("usage.fresh_read", fresh),
	)

	for _, r := range s.recorders {
		r.RecordComputation(ctx, string(d.RiskScore.Level), time.Since(start))
	}

	// a replica may still lag the write behind a recent invalidation, so
	// results from that window are served but not cached
	if s.cache != nil && !fresh && state.generation.Load() == gen {
		s.store(ctx, key, d)
	}
	return d, nil
}

func (s *Service) cached(ctx context.Context, key string) (*Dashboard, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Dashboard cache read failed")
	}

	var d Dashboard
	if ok {
		if err := json.Unmarshal(data, &d); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Discarding corrupt cached dashboard")
			ok = false
		}
	}

	for _, r := range s.recorders {
		r.RecordCacheLookup(ctx, ok)
	}
	if !ok {
		return nil, false
	}
	return &d, true
}

func (s *Service) store(ctx context.Context, key string, d *Dashboard) {
	data, err := json.Marshal(d)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode dashboard")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Dashboard cache write failed")
	}
}

// listRange reads from the primary when fresh is set and the reader
// supports it
func (s *Service) listRange(ctx context.Context, userID int64, from, to usage.Date, fresh bool) ([]usage.Entry, error) {
	if fresh {
		if primary, ok := s.usage.(PrimaryReader); ok {
			return primary.ListRangePrimary(ctx, userID, from, to)
		}
	}
	return s.usage.ListRange(ctx, userID, from, to)
}

func (s *Service) recentlyInvalidated(state *userState) bool {
	at := state.invalidatedAt.Load()
	if at == 0 || s.freshWindow <= 0 {
		return false
	}
	return s.now().Sub(time.Unix(0, at)) < s.freshWindow
}

func (s *Service) state(userID int64) *userState {
	v, _ := s.users.LoadOrStore(userID, new(userState))
	return v.(*userState)
}

const dashboardPrefix = "dashboard:"

func userPrefix(userID int64) string {
	return fmt.Sprintf("%s%d:", dashboardPrefix, userID)
}

func dashboardKey(userID int64, date usage.Date) string {
	return userPrefix(userID) + date.String()
}
