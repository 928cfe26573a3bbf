package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/frontier-alpha/cvrf/internal/domain"
	"github.com/frontier-alpha/cvrf/internal/store"
)

func setupEpisodeTest() (*EpisodeService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	svc := NewEpisodeService(st, st.Episodes(), testLogger())
	return svc, st
}

func floatPtr(v float64) *float64 { return &v }

func TestEpisodeService_RecordDecisionStartsEpisodeLazily(t *testing.T) {
	svc, st := setupEpisodeTest()
	ctx := context.Background()

	if svc.Active() != nil {
		t.Fatal("expected no active episode before the first decision")
	}

	decision, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{
		Symbol: "AAPL",
		Action: "buy",
		Reason: "momentum breakout",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	active := svc.Active()
	if active == nil {
		t.Fatal("expected an active episode after the first decision")
	}
	if active.EpisodeNumber != 1 {
		t.Errorf("episode number = %d, want 1", active.EpisodeNumber)
	}
	if decision.EpisodeID != active.ID {
		t.Error("decision not attached to the active episode")
	}

	// The lazily started episode must be durable immediately.
	persisted, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(persisted) != 1 || persisted[0].Status != domain.EpisodeActive {
		t.Errorf("expected one persisted active episode, got %+v", persisted)
	}
}

func TestEpisodeService_RecordDecisionDefaults(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	absent, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "AAPL", Action: "buy"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if absent.Confidence != 0.5 {
		t.Errorf("absent confidence = %f, want default 0.5", absent.Confidence)
	}
	if absent.Timestamp.IsZero() {
		t.Error("absent timestamp not defaulted to now")
	}
	if absent.Factors == nil {
		t.Error("absent factors not normalized to empty slice")
	}

	// An explicit zero is a statement, not an omission.
	zero, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{
		Symbol:     "MSFT",
		Action:     "sell",
		Confidence: floatPtr(0),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if zero.Confidence != 0 {
		t.Errorf("explicit zero confidence = %f, want 0", zero.Confidence)
	}
}

func TestEpisodeService_RecordDecisionValidation(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	cases := []struct {
		name  string
		input domain.RecordDecisionInput
	}{
		{"missing symbol", domain.RecordDecisionInput{Action: "buy"}},
		{"missing action", domain.RecordDecisionInput{Symbol: "AAPL"}},
		{"unknown action", domain.RecordDecisionInput{Symbol: "AAPL", Action: "yolo"}},
	}
	for _, tc := range cases {
		_, err := svc.RecordDecision(ctx, tc.input)
		var valErr *domain.ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}

	if svc.Active() != nil {
		t.Error("rejected decisions must not start an episode")
	}
}

func TestEpisodeService_FinalizeActiveComputesMetrics(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	_, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{
		Symbol: "AAPL",
		Action: "buy",
		Factors: []domain.FactorExposure{
			{Factor: "momentum", Exposure: 0.8, Contribution: 0.02},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	episode, err := svc.FinalizeActive(domain.CompleteEpisodeInput{
		StartValue: 100_000,
		EndValue:   105_000,
		Valuations: []float64{100_000, 98_000, 103_000, 105_000},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if episode.Status != domain.EpisodeCompleted {
		t.Errorf("status = %s, want completed", episode.Status)
	}
	if episode.EndDate == nil {
		t.Error("end date not set")
	}
	if math.Abs(episode.PortfolioReturn-0.05) > 1e-9 {
		t.Errorf("portfolio return = %f, want 0.05", episode.PortfolioReturn)
	}
	if math.Abs(episode.MaxDrawdown-(-0.02)) > 1e-9 {
		t.Errorf("max drawdown = %f, want -0.02", episode.MaxDrawdown)
	}
	if episode.SharpeRatio == 0 {
		t.Error("sharpe ratio not computed from the valuation series")
	}
	if len(episode.FactorProfile) != len(domain.CanonicalFactors) {
		t.Errorf("factor profile dimension = %d, want %d",
			len(episode.FactorProfile), len(domain.CanonicalFactors))
	}

	// Finalize computes; it must not mutate lifecycle state by itself.
	if svc.Active() == nil {
		t.Error("active episode must survive until the commit lands")
	}
}

func TestEpisodeService_FinalizeActiveErrors(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	_, err := svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 100, EndValue: 110})
	var stateErr *domain.StateError
	if !errors.As(err, &stateErr) {
		t.Errorf("no active episode: expected StateError, got %v", err)
	}

	if _, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "AAPL", Action: "buy"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	_, err = svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 0, EndValue: 110})
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("non-positive start value: expected ValidationError, got %v", err)
	}
}

func TestEpisodeService_ZeroDecisionEpisodeCannotComplete(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "AAPL", Action: "buy"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	episode, err := svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 100, EndValue: 101})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := svc.CommitColdStart(ctx, episode); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// No decisions have been recorded since, so there is nothing to close.
	_, err = svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 101, EndValue: 102})
	var stateErr *domain.StateError
	if !errors.As(err, &stateErr) {
		t.Errorf("expected StateError, got %v", err)
	}
}

func TestEpisodeService_ColdStartBecomesBaseline(t *testing.T) {
	svc, _ := setupEpisodeTest()
	ctx := context.Background()

	if svc.Previous() != nil {
		t.Fatal("expected no previous episode on cold start")
	}

	if _, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "AAPL", Action: "buy"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	episode, err := svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 100, EndValue: 104})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := svc.CommitColdStart(ctx, episode); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if svc.Active() != nil {
		t.Error("active episode not cleared after completion")
	}
	prev := svc.Previous()
	if prev == nil || prev.EpisodeNumber != 1 {
		t.Fatalf("baseline episode not published: %+v", prev)
	}

	// The next decision starts episode 2.
	if _, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "MSFT", Action: "sell"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := svc.Active().EpisodeNumber; got != 2 {
		t.Errorf("next episode number = %d, want 2", got)
	}
}

func TestEpisodeService_RestoreResumesNumbering(t *testing.T) {
	svc, st := setupEpisodeTest()
	ctx := context.Background()

	if _, err := svc.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "AAPL", Action: "buy"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	episode, err := svc.FinalizeActive(domain.CompleteEpisodeInput{StartValue: 100, EndValue: 101})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := svc.CommitColdStart(ctx, episode); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A fresh service over the same store picks up where the old one left off.
	restored := NewEpisodeService(st, st.Episodes(), testLogger())
	persisted, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	restored.Restore(persisted)

	if restored.Previous() == nil || restored.Previous().EpisodeNumber != 1 {
		t.Error("restored service lost the completed baseline")
	}
	if _, err := restored.RecordDecision(ctx, domain.RecordDecisionInput{Symbol: "MSFT", Action: "buy"}); err != nil {
		t.Fatalf("record after restore: %v", err)
	}
	if got := restored.Active().EpisodeNumber; got != 2 {
		t.Errorf("episode number after restore = %d, want 2", got)
	}
}
