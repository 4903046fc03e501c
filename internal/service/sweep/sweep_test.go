package sweep_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/service/sweep"
	"github.com/ashita-ai/annai/internal/storage"
)

type fakeLister struct {
	skills []model.Skill
}

func (f *fakeLister) ListSkills(context.Context, storage.SkillFilter) ([]model.Skill, error) {
	return f.skills, nil
}

func TestSweepProbesActiveEndpoints(t *testing.T) {
	var probes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD probe, got %s", r.Method)
		}
		probes.Add(1)
	}))
	defer srv.Close()

	endpoint := srv.URL
	lister := &fakeLister{skills: []model.Skill{
		{ID: 1, Name: "resume", Endpoint: &endpoint, IsActive: true},
		{ID: 2, Name: "interview", Endpoint: &endpoint, IsActive: true},
		{ID: 3, Name: "no-endpoint", IsActive: true},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sweep.New(lister, srv.Client(), logger)
	s.Sweep(context.Background())

	if got := probes.Load(); got != 2 {
		t.Fatalf("expected 2 probes, got %d", got)
	}
}

func TestSweepSurvivesUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead := srv.URL
	srv.Close()

	lister := &fakeLister{skills: []model.Skill{
		{ID: 1, Name: "gone", Endpoint: &dead, IsActive: true},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sweep.New(lister, nil, logger)

	// Must not panic or block.
	s.Sweep(context.Background())
}
