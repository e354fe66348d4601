package decision

import (
	"fmt"
	"time"

	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// ApprovalOutcome aggregates one approval pass.
type ApprovalOutcome struct {
	Approved int
	Flagged  int
	Archived int
	Errors   []string
}

// PublishOutcome aggregates one publishing pass.
type PublishOutcome struct {
	Published int
	Errors    []string
}

// Engine evaluates rules over pending signals and draft articles. A failure
// on one item is recorded and does not stop the rest of the batch.
type Engine struct {
	store *model.Store
	rules RuleSet
	now   func() time.Time
}

// NewEngine creates a decision engine with the given rule set.
func NewEngine(store *model.Store, rules RuleSet) *Engine {
	return &Engine{store: store, rules: rules, now: func() time.Time { return time.Now().UTC() }}
}

// EvaluateApprovals runs the approval rules over every pending signal.
// Signals matching no rule stay pending and are re-evaluated next cycle.
func (e *Engine) EvaluateApprovals() (ApprovalOutcome, error) {
	var out ApprovalOutcome

	signals, err := e.store.PendingSignals()
	if err != nil {
		return out, fmt.Errorf("failed to load pending signals: %w", err)
	}

	for _, sig := range signals {
		rule, matched := e.matchApproval(sig)
		if matched {
			if err := e.store.TransitionSignal(sig.ID, model.StatusPending, model.StatusApproved); err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("signal %s: %v", sig.ID, err))
				continue
			}
			out.Approved++
			logging.Info("signal approved", "signal", sig.ID, "rule", rule.Name)
			continue
		}

		if archiveRule, ok := e.matchArchive(sig); ok {
			if err := e.store.TransitionSignal(sig.ID, model.StatusPending, model.StatusArchived); err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("signal %s: %v", sig.ID, err))
				continue
			}
			out.Archived++
			logging.Info("signal archived", "signal", sig.ID, "rule", archiveRule.Name)
		}
	}

	return out, nil
}

// matchApproval returns the first enabled rule whose conditions all hold.
func (e *Engine) matchApproval(sig model.Signal) (ApprovalRule, bool) {
	for _, rule := range e.rules.Approval {
		if !rule.Enabled {
			continue
		}
		if sig.Confidence < rule.MinConfidence {
			continue
		}
		if sig.Significance < rule.MinSignificance {
			continue
		}
		if len(rule.AllowedTypes) > 0 && !containsType(rule.AllowedTypes, string(sig.Type)) {
			continue
		}
		if rule.MaxAgeMinutes > 0 {
			age := e.now().Sub(sig.CreatedAt)
			if age > time.Duration(rule.MaxAgeMinutes)*time.Minute {
				continue
			}
		}
		return rule, true
	}
	return ApprovalRule{}, false
}

// matchArchive checks opt-in archive floors. Only consulted after no
// approval rule matched.
func (e *Engine) matchArchive(sig model.Signal) (ApprovalRule, bool) {
	for _, rule := range e.rules.Approval {
		if !rule.Enabled || rule.ArchiveBelowSignificance <= 0 {
			continue
		}
		// Unanalyzed signals score 0; never archive those
		if sig.Type == "" {
			continue
		}
		if sig.Significance < rule.ArchiveBelowSignificance {
			return rule, true
		}
	}
	return ApprovalRule{}, false
}

// EvaluatePublishing runs the publishing rules over every draft article.
// Drafts whose signal is not yet approved are skipped without error and
// become eligible again next cycle.
func (e *Engine) EvaluatePublishing() (PublishOutcome, error) {
	var out PublishOutcome

	drafts, err := e.store.DraftArticles()
	if err != nil {
		return out, fmt.Errorf("failed to load drafts: %w", err)
	}

	for _, article := range drafts {
		matched, err := e.matchPublishing(article)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("article %s: %v", article.ID, err))
			continue
		}
		if !matched {
			continue
		}
		if err := e.store.PublishArticle(article.ID, e.now()); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("article %s: %v", article.ID, err))
			continue
		}
		out.Published++
		logging.Info("article published", "article", article.ID)
	}

	return out, nil
}

func (e *Engine) matchPublishing(article model.Article) (bool, error) {
	for _, rule := range e.rules.Publishing {
		if !rule.Enabled {
			continue
		}
		if rule.MinArticleAgeMinutes > 0 {
			age := e.now().Sub(article.CreatedAt)
			if age < time.Duration(rule.MinArticleAgeMinutes)*time.Minute {
				continue
			}
		}
		if rule.RequireApprovedSignal {
			if article.SignalID == "" {
				continue
			}
			sig, err := e.store.Signal(article.SignalID)
			if err != nil {
				return false, fmt.Errorf("linked signal lookup: %w", err)
			}
			if sig.Status != model.StatusApproved {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}

func containsType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
