// Package triage classifies and scores signals using a language model.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/abelbrown/signaldesk/internal/brain"
	"github.com/abelbrown/signaldesk/internal/budget"
	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// bodyExcerptLength bounds how much body text goes into the prompts.
const bodyExcerptLength = 800

// defaultSignificance is used when scoring fails after a successful
// classification. Mid-scale keeps the signal eligible for mid-threshold
// rules without inflating it.
const defaultSignificance = 50

const classifySystemPrompt = `You classify news signals. A signal is a cluster of related news items.
Respond with only a JSON object, no prose:
{"type": "breaking|repetition|contradiction|shift", "confidence": 0-100, "notes": "one sentence"}
Types: breaking = new event, repetition = already-reported story, contradiction = conflicts with prior coverage, shift = narrative changing direction.`

const scoreSystemPrompt = `You rate the editorial significance of news signals on a 0-100 scale.
0 means ignorable, 100 means front-page. Respond with only a JSON object:
{"significance": 0-100}`

// Result reports the outcome of one analysis.
type Result struct {
	SignalID     string
	Type         model.SignalType
	Confidence   int
	Significance int
	Notes        string
	TokensUsed   int

	// Partial is set when classification succeeded but scoring failed
	// and significance fell back to the default.
	Partial       bool
	PartialReason string
}

// Analyzer runs the two-step classify-then-score analysis on signals.
// Every external call is gated by the budget guard first.
type Analyzer struct {
	store     *model.Store
	providers *brain.ProviderManager
	guard     *budget.Guard
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(store *model.Store, providers *brain.ProviderManager, guard *budget.Guard) *Analyzer {
	return &Analyzer{store: store, providers: providers, guard: guard}
}

// Analyze classifies and scores one signal. The signal keeps status pending;
// only the decision engine changes status. Scoring failure after successful
// classification is reported via Result.Partial, not as an error.
func (a *Analyzer) Analyze(ctx context.Context, signalID string) (Result, error) {
	sig, err := a.store.Signal(signalID)
	if err != nil {
		return Result{}, fmt.Errorf("signal not found: %w", err)
	}
	cluster, err := a.store.Cluster(sig.ClusterID)
	if err != nil {
		return Result{}, fmt.Errorf("cluster not found: %w", err)
	}
	primary, err := a.store.RawItem(cluster.PrimaryItemID)
	if err != nil {
		return Result{}, fmt.Errorf("primary item not found: %w", err)
	}

	if err := a.guard.Allow(); err != nil {
		return Result{}, fmt.Errorf("analysis blocked: %w", err)
	}

	provider := a.providers.GetAvailable()
	if provider == nil {
		return Result{}, fmt.Errorf("no AI provider available")
	}

	prompt := fmt.Sprintf("Title: %s\n\nBody: %s", primary.Title, excerpt(primary.Body, bodyExcerptLength))

	res := Result{SignalID: signalID}

	classResp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    512,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classification failed: %w", err)
	}
	a.guard.Record(classResp.TokensUsed)
	res.TokensUsed += classResp.TokensUsed

	var classification struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
		Notes      string  `json:"notes"`
	}
	if err := parseJSON(classResp.Content, &classification); err != nil {
		return Result{}, fmt.Errorf("failed to parse classification: %w", err)
	}
	if !model.ValidSignalType(model.SignalType(classification.Type)) {
		return Result{}, fmt.Errorf("unknown signal type %q", classification.Type)
	}
	res.Type = model.SignalType(classification.Type)
	res.Confidence = clampScore(classification.Confidence)
	res.Notes = classification.Notes

	res.Significance, res.Partial, res.PartialReason = a.score(ctx, provider, prompt, &res)

	if err := a.store.UpdateSignalAnalysis(signalID, res.Type, res.Confidence,
		res.Significance, res.Notes, res.TokensUsed); err != nil {
		return Result{}, fmt.Errorf("failed to store analysis: %w", err)
	}

	logging.Info("signal analyzed",
		"signal", signalID,
		"type", res.Type,
		"confidence", res.Confidence,
		"significance", res.Significance,
		"partial", res.Partial,
		"provider", provider.Name())
	return res, nil
}

// score runs the significance call. Failure falls back to the default and
// is flagged as partial rather than aborting the analysis.
func (a *Analyzer) score(ctx context.Context, provider brain.Provider, prompt string, res *Result) (int, bool, string) {
	if err := a.guard.Allow(); err != nil {
		return defaultSignificance, true, err.Error()
	}

	scoreResp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: scoreSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    128,
	})
	if err != nil {
		logging.Warn("scoring failed", "signal", res.SignalID, "error", err)
		return defaultSignificance, true, err.Error()
	}
	a.guard.Record(scoreResp.TokensUsed)
	res.TokensUsed += scoreResp.TokensUsed

	var scoring struct {
		Significance float64 `json:"significance"`
	}
	if err := parseJSON(scoreResp.Content, &scoring); err != nil {
		logging.Warn("failed to parse score", "signal", res.SignalID, "error", err)
		return defaultSignificance, true, err.Error()
	}

	return clampScore(scoring.Significance), false, ""
}

// excerpt truncates s to at most max bytes without splitting a multibyte
// rune, so the prompt stays valid UTF-8.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// clampScore rounds to the nearest integer and clamps into [0,100].
func clampScore(v float64) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// parseJSON extracts the first JSON object from model output, tolerating
// prose or markdown fences around it.
func parseJSON(content string, v any) error {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
