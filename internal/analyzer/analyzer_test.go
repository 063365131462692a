package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"arbscan/internal/config"
	"arbscan/internal/models"
)

type stubChat struct {
	lastSystem string
	lastUser   string
	reply      string
	err        error
}

func (s *stubChat) Complete(ctx context.Context, model, system, user string) (string, error) {
	s.lastSystem = system
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func seedOpportunity(repo *stubRepo, now time.Time) *models.ArbitrageOpportunity {
	repo.events["ev-1"] = &models.Event{
		ID:           "ev-1",
		Sport:        "soccer",
		Teams:        datatypes.JSON([]byte(`["Arsenal","Chelsea"]`)),
		CommenceTime: now.Add(48 * time.Hour),
	}
	opp := &models.ArbitrageOpportunity{
		ID:               "opp-1",
		EventID:          "ev-1",
		MarketType:       "h2h",
		ProfitPercentage: decimal.NewFromFloat(4.5),
		TotalStake:       decimal.NewFromInt(1000),
		ExpectedProfit:   decimal.NewFromFloat(45),
		BookmakerStakes:  datatypes.JSON([]byte(`{"bet365":{"home":500},"pinnacle":{"away":500}}`)),
		BookmakerOdds:    datatypes.JSON([]byte(`{"bet365":{"home":2.1},"pinnacle":{"away":2.1}}`)),
		RiskScore:        4.0,
		Status:           models.OpportunityStatusDetected,
		DetectedAt:       now,
		ExpiresAt:        now.Add(15 * time.Minute),
	}
	repo.opportunities["opp-1"] = opp
	return opp
}

func TestAnalyzePersistsModelVerdict(t *testing.T) {
	now := time.Now().UTC()
	repo := newStubRepo()
	seedOpportunity(repo, now)
	chat := &stubChat{reply: `{"ai_score": 8, "risk_level": 2, "execution_difficulty": "easy",` +
		`"recommended_action": "execute", "confidence": 0.9, "key_factors": ["margin"],` +
		`"warnings": [], "execution_priority": "high", "reasoning": "good spread"}`}

	a := &Analyzer{
		Repo:   repo,
		Chat:   chat,
		Config: config.AnalyzerConfig{Model: "gpt-4", BatchSize: 5},
		Now:    func() time.Time { return now },
	}
	v, err := a.Analyze(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if v.AIScore != 8 || v.RecommendedAction != "execute" {
		t.Fatalf("verdict = %+v", v)
	}
	if repo.scores["opp-1"] != 8 {
		t.Fatalf("persisted score = %v", repo.scores["opp-1"])
	}
	var saved Verdict
	if err := json.Unmarshal(repo.analyses["opp-1"], &saved); err != nil {
		t.Fatalf("decode saved analysis: %v", err)
	}
	if saved.ModelUsed != "gpt-4" {
		t.Fatalf("saved model = %q", saved.ModelUsed)
	}
	if !strings.Contains(chat.lastUser, "Arsenal vs Chelsea") {
		t.Fatalf("prompt missing teams:\n%s", chat.lastUser)
	}
	if !strings.Contains(chat.lastUser, "4.50%") {
		t.Fatalf("prompt missing profit:\n%s", chat.lastUser)
	}
}

func TestAnalyzeFallsBackOnModelError(t *testing.T) {
	now := time.Now().UTC()
	repo := newStubRepo()
	seedOpportunity(repo, now)
	chat := &stubChat{err: errors.New("model offline")}

	a := &Analyzer{
		Repo:   repo,
		Chat:   chat,
		Config: config.AnalyzerConfig{Model: "gpt-4"},
		Now:    func() time.Time { return now },
	}
	v, err := a.Analyze(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("analyze must not fail on model error: %v", err)
	}
	if v.ModelUsed != "rule_based_fallback" {
		t.Fatalf("model = %q, want fallback", v.ModelUsed)
	}
	// profit 4.5 (+1), risk 4.0 (0), 48h out (0) -> 6.0.
	if v.AIScore != 6.0 {
		t.Fatalf("fallback score = %v, want 6.0", v.AIScore)
	}
	if _, ok := repo.analyses["opp-1"]; !ok {
		t.Fatalf("fallback verdict must still be persisted")
	}
}

func TestAnalyzeFallsBackOnUnparseableReply(t *testing.T) {
	now := time.Now().UTC()
	repo := newStubRepo()
	seedOpportunity(repo, now)
	chat := &stubChat{reply: "I am unable to provide a structured answer."}

	a := &Analyzer{Repo: repo, Chat: chat, Now: func() time.Time { return now }}
	v, err := a.Analyze(context.Background(), "opp-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if v.ModelUsed != "rule_based_fallback" {
		t.Fatalf("model = %q, want fallback", v.ModelUsed)
	}
}

func TestAnalyzeMissingOpportunity(t *testing.T) {
	repo := newStubRepo()
	a := &Analyzer{Repo: repo}
	if _, err := a.Analyze(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown opportunity")
	}
}

func TestRunCycleBatches(t *testing.T) {
	now := time.Now().UTC()
	repo := newStubRepo()
	seedOpportunity(repo, now)
	second := *repo.opportunities["opp-1"]
	second.ID = "opp-2"
	repo.opportunities["opp-2"] = &second
	repo.unanalyzed = []models.ArbitrageOpportunity{*repo.opportunities["opp-1"], second}

	a := &Analyzer{
		Repo:   repo,
		Chat:   &stubChat{err: errors.New("offline")},
		Config: config.AnalyzerConfig{BatchSize: 5},
		Now:    func() time.Time { return now },
	}
	if err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(repo.analyses) != 2 {
		t.Fatalf("analyzed = %d, want 2", len(repo.analyses))
	}
}

func TestRunCycleHonorsBatchSize(t *testing.T) {
	now := time.Now().UTC()
	repo := newStubRepo()
	seedOpportunity(repo, now)
	for i := 0; i < 3; i++ {
		opp := *repo.opportunities["opp-1"]
		opp.ID = "opp-batch-" + string(rune('a'+i))
		repo.opportunities[opp.ID] = &opp
		repo.unanalyzed = append(repo.unanalyzed, opp)
	}

	a := &Analyzer{
		Repo:   repo,
		Config: config.AnalyzerConfig{BatchSize: 2},
		Now:    func() time.Time { return now },
	}
	if err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(repo.analyses) != 2 {
		t.Fatalf("analyzed = %d, want batch size 2", len(repo.analyses))
	}
}
