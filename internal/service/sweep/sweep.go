// Package sweep periodically probes active skill endpoints so operators find
// out about dead endpoints from the logs instead of from failed routes.
package sweep

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/storage"
)

// probeConcurrency bounds parallel probes so a large catalog doesn't open a
// connection per skill at once.
const probeConcurrency = 4

// probeTimeout is deliberately shorter than typical skill timeouts; a probe
// only needs to establish that something answers at the endpoint.
const probeTimeout = 5 * time.Second

// SkillLister lists skills for probing. *storage.DB satisfies it.
type SkillLister interface {
	ListSkills(ctx context.Context, filter storage.SkillFilter) ([]model.Skill, error)
}

// Sweeper probes active skill endpoints on an interval.
type Sweeper struct {
	skills     SkillLister
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Sweeper. A nil client falls back to a default client.
func New(skills SkillLister, client *http.Client, logger *slog.Logger) *Sweeper {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{skills: skills, httpClient: client, logger: logger}
}

// Start runs sweeps on the given interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep probes every active skill endpoint once. Probe failures are logged,
// never returned: an unreachable skill is an operational signal, not an error
// of the sweep itself.
func (s *Sweeper) Sweep(ctx context.Context) {
	active := true
	skills, err := s.skills.ListSkills(ctx, storage.SkillFilter{IsActive: &active})
	if err != nil {
		s.logger.Error("sweep: failed to list skills", "error", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	var reachable, unreachable atomic.Int64
	skipped := 0
	for _, skill := range skills {
		if skill.Endpoint == nil || *skill.Endpoint == "" {
			skipped++
			continue
		}
		g.Go(func() error {
			if s.probe(ctx, skill) {
				reachable.Add(1)
			} else {
				unreachable.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("skill reachability sweep complete",
		"reachable", reachable.Load(),
		"unreachable", unreachable.Load(),
		"no_endpoint", skipped,
	)
}

// probe considers any HTTP response reachable; only transport failures count
// against an endpoint.
func (s *Sweeper) probe(ctx context.Context, skill model.Skill) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, *skill.Endpoint, nil)
	if err != nil {
		s.logger.Warn("sweep: invalid skill endpoint",
			"skill", skill.Name, "endpoint", *skill.Endpoint, "error", err)
		return false
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("sweep: skill endpoint unreachable",
			"skill", skill.Name, "endpoint", *skill.Endpoint, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return true
}
