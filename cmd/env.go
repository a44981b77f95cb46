package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/staff-eval/internal/fetcher"
	"github.com/sells-group/staff-eval/internal/reconcile"
	"github.com/sells-group/staff-eval/internal/resilience"
	"github.com/sells-group/staff-eval/internal/scorer"
	"github.com/sells-group/staff-eval/internal/store"
	"github.com/sells-group/staff-eval/pkg/callmetrics"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func ruleSource(st store.Store) scorer.RuleSource {
	if cfg.Evaluation.RulesSource == "store" {
		return scorer.StoreSource{Store: st}
	}
	return scorer.FileSource{Path: cfg.Evaluation.RulesFile}
}

// metricsLookup returns nil when no counter service is configured.
func metricsLookup() reconcile.MetricsLookup {
	mc := cfg.CallMetrics
	if mc.BaseURL == "" {
		return nil
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = mc.MaxAttempts
	retry.OnRetry = resilience.RetryLogger("callmetrics", "counters")

	opts := []callmetrics.Option{
		callmetrics.WithRateLimit(mc.RatePerSec),
		callmetrics.WithRetry(retry),
	}
	if mc.Token != "" {
		opts = append(opts, callmetrics.WithToken(mc.Token))
	}
	if mc.TimeoutSecs > 0 {
		opts = append(opts, callmetrics.WithHTTPClient(&http.Client{Timeout: mc.Timeout()}))
	}
	return callmetrics.NewClient(mc.BaseURL, opts...)
}

func newService(st store.Store) *reconcile.Service {
	return reconcile.NewService(st, ruleSource(st), reconcile.Options{
		Threshold:   cfg.Evaluation.SimilarityThreshold,
		LinkWorkers: cfg.Evaluation.LinkWorkers,
		Metrics:     metricsLookup(),
	})
}

func newFetcher() *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{Timeout: cfg.Fetch.Timeout()})
}
