package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelbrown/signaldesk/internal/brain"
	"github.com/abelbrown/signaldesk/internal/budget"
	"github.com/abelbrown/signaldesk/internal/model"
)

const synthesisSystemPrompt = `You write short news briefs from editorial signals.
First line: a headline. Remaining lines: a 2-3 paragraph brief.
Plain text only, no markdown.`

// BrainSynthesizer drafts articles from signals using a language model.
type BrainSynthesizer struct {
	store     *model.Store
	providers *brain.ProviderManager
	guard     *budget.Guard
}

// NewBrainSynthesizer creates a model-backed synthesizer.
func NewBrainSynthesizer(store *model.Store, providers *brain.ProviderManager, guard *budget.Guard) *BrainSynthesizer {
	return &BrainSynthesizer{store: store, providers: providers, guard: guard}
}

// Synthesize drafts an article for one approved signal based on its
// cluster's primary item.
func (bs *BrainSynthesizer) Synthesize(ctx context.Context, sig model.Signal) (model.Article, error) {
	c, err := bs.store.Cluster(sig.ClusterID)
	if err != nil {
		return model.Article{}, fmt.Errorf("cluster not found: %w", err)
	}
	primary, err := bs.store.RawItem(c.PrimaryItemID)
	if err != nil {
		return model.Article{}, fmt.Errorf("primary item not found: %w", err)
	}

	if err := bs.guard.Allow(); err != nil {
		return model.Article{}, fmt.Errorf("synthesis blocked: %w", err)
	}

	provider := bs.providers.GetAvailable()
	if provider == nil {
		return model.Article{}, fmt.Errorf("no AI provider available")
	}

	prompt := fmt.Sprintf("Signal type: %s\nAnalyst notes: %s\n\nSource title: %s\nSource body: %s",
		sig.Type, sig.Notes, primary.Title, primary.Body)
	resp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: synthesisSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    1024,
	})
	if err != nil {
		return model.Article{}, fmt.Errorf("synthesis failed: %w", err)
	}
	bs.guard.Record(resp.TokensUsed)

	title, body := splitBrief(resp.Content)
	if title == "" {
		return model.Article{}, fmt.Errorf("synthesis produced no content")
	}
	return model.Article{Title: title, Body: body}, nil
}

// splitBrief takes the first non-empty line as the headline and the rest as
// the body.
func splitBrief(content string) (string, string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return "", ""
	}
	title := strings.TrimSpace(lines[0])
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return title, body
}

// NoopDistributor is the placeholder distribution backend. It accepts every
// article and reports zero destinations.
type NoopDistributor struct{}

// Distribute does nothing.
func (NoopDistributor) Distribute(ctx context.Context, article model.Article) (int, error) {
	return 0, nil
}
