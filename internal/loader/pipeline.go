package loader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/logging"
	"orders-graphql/internal/observability"
	"orders-graphql/internal/planner"

	"go.opentelemetry.io/otel/attribute"
)

// Strategy selects how associations are loaded.
type Strategy string

const (
	// StrategyBatch runs the root query, then one IN (set) query per to-many
	// association. It paginates by root and is the default.
	StrategyBatch Strategy = "batch"
	// StrategyJoin runs a single joined query and deduplicates roots.
	StrategyJoin Strategy = "join"
	// StrategyNaive resolves every association per root.
	StrategyNaive Strategy = "naive"
)

// ParseStrategy maps a configured or requested name to a Strategy. An empty
// name yields the empty strategy, which callers treat as "use the default".
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return "", nil
	case StrategyBatch:
		return StrategyBatch, nil
	case StrategyJoin:
		return StrategyJoin, nil
	case StrategyNaive:
		return StrategyNaive, nil
	default:
		return "", &aggregate.ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", name)}
	}
}

// Runner runs a unit of work inside one query scope.
type Runner interface {
	Run(ctx context.Context, fn func(dbexec.Querier) error) error
}

// Request is one loading request.
type Request struct {
	Criteria aggregate.Criteria
	// Strategy defaults to the pipeline default when empty.
	Strategy Strategy
	// Associations names the to-many associations to load.
	Associations []string
	// RowPagination lets the join strategy apply an explicit page to the
	// joined rows. The page then counts rows, not roots.
	RowPagination bool
}

// Result is the outcome of a successful run.
type Result struct {
	Strategy Strategy
	Roots    []aggregate.RootRecord
	// Groups is keyed by association name and has an entry for every
	// requested association.
	Groups  map[string]aggregate.AssociationGroup
	Queries int
}

// Options configures a Pipeline.
type Options struct {
	DefaultStrategy Strategy
	AllowNaive      bool
	// QueryTimeout bounds a whole run when positive.
	QueryTimeout time.Duration
	Metrics      *observability.Metrics
	Logger       *logging.Logger
}

// Pipeline loads order aggregates with a selectable strategy. Each run uses
// one read-only query scope and returns either a complete result or an
// error, never a partial result.
type Pipeline struct {
	root    aggregate.Root
	runner  Runner
	roots   *RootQueryExecutor
	batch   *AssociationBatchLoader
	join    *JoinFetchExecutor
	naive   *NaiveLoader
	opts    Options
	logger  *logging.Logger
	metrics *observability.Metrics
}

// NewPipeline creates a pipeline for root.
func NewPipeline(root aggregate.Root, p *planner.Planner, runner Runner, opts Options) *Pipeline {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = StrategyBatch
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pipeline{
		root:    root,
		runner:  runner,
		roots:   NewRootQueryExecutor(p, root),
		batch:   NewAssociationBatchLoader(p),
		join:    NewJoinFetchExecutor(p, root),
		naive:   NewNaiveLoader(p, root),
		opts:    opts,
		logger:  logger.WithComponent("loader"),
		metrics: opts.Metrics,
	}
}

// DefaultStrategy returns the strategy used when a request names none.
func (p *Pipeline) DefaultStrategy() Strategy {
	return p.opts.DefaultStrategy
}

// Run executes req.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	strategy := req.Strategy
	if strategy == "" {
		strategy = p.opts.DefaultStrategy
	}

	ctx, span := startLoaderSpan(ctx, "loader.pipeline",
		attribute.String("loader.strategy", string(strategy)),
		attribute.Int("loader.associations", len(req.Associations)),
	)
	defer span.End()

	result, err := p.run(ctx, strategy, req)
	finishLoaderSpan(span, err)

	duration := time.Since(start)
	logger := p.logger
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		logger = logger.WithRequestID(requestID)
	}
	if err != nil {
		code := aggregate.ErrorCode(err)
		if m := p.metricsFor(ctx); m != nil {
			m.RecordLoad(ctx, string(strategy), duration, result.Queries, 0, code)
		}
		level := slog.LevelError
		if code != aggregate.CodeQueryFailed {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "aggregate load failed",
			slog.String("strategy", string(strategy)),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return Result{}, err
	}

	if m := p.metricsFor(ctx); m != nil {
		m.RecordLoad(ctx, string(strategy), duration, result.Queries, len(result.Roots), "")
		if strategy != StrategyNaive {
			m.RecordQueriesSaved(ctx, string(strategy), p.naiveQueryCount(len(result.Roots), len(req.Associations))-result.Queries)
		}
	}
	span.SetAttributes(
		attribute.Int("loader.queries", result.Queries),
		attribute.Int("loader.roots", len(result.Roots)),
	)
	logger.Debug("aggregate load finished",
		slog.String("strategy", string(strategy)),
		slog.Int("roots", len(result.Roots)),
		slog.Int("queries", result.Queries),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// metricsFor prefers the configured instruments and falls back to the ones
// the HTTP layer put in ctx.
func (p *Pipeline) metricsFor(ctx context.Context) *observability.Metrics {
	if p.metrics != nil {
		return p.metrics
	}
	return observability.MetricsFromContext(ctx)
}

// naiveQueryCount is the number of statements the per-row strategy would
// issue for the same request.
func (p *Pipeline) naiveQueryCount(roots, toMany int) int {
	return 1 + roots*(len(p.root.ToOne)+toMany)
}

func (p *Pipeline) run(ctx context.Context, strategy Strategy, req Request) (Result, error) {
	if err := req.Criteria.Validate(p.root); err != nil {
		return Result{}, err
	}
	assocs, err := p.resolveAssociations(req.Associations)
	if err != nil {
		return Result{}, err
	}

	var run func(context.Context, dbexec.Querier) (Result, error)
	switch strategy {
	case StrategyBatch:
		run = func(ctx context.Context, q dbexec.Querier) (Result, error) {
			return p.runBatch(ctx, q, req.Criteria, assocs)
		}
	case StrategyJoin:
		if len(assocs) > 1 {
			return Result{}, &aggregate.UnsupportedQueryError{
				Reason:       "a joined query may fetch at most one to-many association",
				Associations: req.Associations,
			}
		}
		run = func(ctx context.Context, q dbexec.Querier) (Result, error) {
			return p.runJoin(ctx, q, req, assocs)
		}
	case StrategyNaive:
		if !p.opts.AllowNaive {
			return Result{}, &aggregate.ValidationError{Field: "strategy", Message: "naive loading is disabled"}
		}
		run = func(ctx context.Context, q dbexec.Querier) (Result, error) {
			roots, groups, err := p.naive.Load(ctx, q, req.Criteria, assocs)
			return Result{Roots: roots, Groups: groups}, err
		}
	default:
		return Result{}, &aggregate.ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	if p.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.QueryTimeout)
		defer cancel()
	}

	var result Result
	var counter *dbexec.CountingQuerier
	err = p.runner.Run(ctx, func(q dbexec.Querier) error {
		counter = dbexec.NewCountingQuerier(q)
		var runErr error
		result, runErr = run(ctx, counter)
		return runErr
	})
	queries := 0
	if counter != nil {
		queries = counter.Count()
	}
	if err != nil {
		return Result{Queries: queries}, err
	}
	result.Strategy = strategy
	result.Queries = queries
	return result, nil
}

func (p *Pipeline) resolveAssociations(names []string) ([]aggregate.Association, error) {
	assocs := make([]aggregate.Association, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		assoc, ok := p.root.ToManyByName(name)
		if !ok {
			return nil, &aggregate.ValidationError{Field: "associations", Message: fmt.Sprintf("unknown association %q", name)}
		}
		assocs = append(assocs, assoc)
	}
	return assocs, nil
}

// runBatch issues the root query, then one batch query per association
// over the root ids of the page. The root page is final before any child is
// read, so pagination always counts roots.
func (p *Pipeline) runBatch(ctx context.Context, q dbexec.Querier, criteria aggregate.Criteria, assocs []aggregate.Association) (Result, error) {
	roots, err := p.roots.FindRoots(ctx, q, criteria)
	if err != nil {
		return Result{}, err
	}

	ids := aggregate.RootIDs(roots)
	groups := make(map[string]aggregate.AssociationGroup, len(assocs))
	for _, assoc := range assocs {
		if err := ctx.Err(); err != nil {
			return Result{}, &aggregate.QueryError{Phase: "association " + assoc.Name, Err: err}
		}
		group, err := p.batch.Load(ctx, q, ids, assoc)
		if err != nil {
			return Result{}, err
		}
		if m := p.metricsFor(ctx); m != nil {
			m.RecordBatch(ctx, assoc.Name, len(ids), countChildren(group))
		}
		groups[assoc.Name] = group
	}
	return Result{Roots: roots, Groups: groups}, nil
}

func (p *Pipeline) runJoin(ctx context.Context, q dbexec.Querier, req Request, assocs []aggregate.Association) (Result, error) {
	joins := make([]aggregate.Association, 0, len(p.root.ToOne)+len(assocs))
	joins = append(joins, p.root.ToOne...)
	joins = append(joins, assocs...)

	joined, err := p.join.FindRootsWithJoin(ctx, q, req.Criteria, joins, planner.JoinOptions{RowPagination: req.RowPagination})
	if err != nil {
		return Result{}, err
	}
	if m := p.metricsFor(ctx); m != nil {
		for name := range joined.Groups {
			m.RecordJoinDedup(ctx, name, joined.Duplicates(), joined.Truncated)
		}
	}
	if joined.Truncated {
		p.logger.Warn("joined load truncated to default page",
			slog.Int("roots", len(joined.Roots)),
			slog.Int("rows", joined.Rows),
		)
	}
	return Result{Roots: joined.Roots, Groups: joined.Groups}, nil
}

func countChildren(group aggregate.AssociationGroup) int {
	total := 0
	for _, children := range group {
		total += len(children)
	}
	return total
}
