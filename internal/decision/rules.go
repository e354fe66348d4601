// Package decision evaluates declarative rules to approve pending signals
// and publish draft articles.
package decision

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAutoArchiveFloor is the significance floor below which a rule may
// archive pending signals. No default rule applies it; a rule opts in by
// setting archive_below_significance.
const DefaultAutoArchiveFloor = 20

// ApprovalRule approves a pending signal when every specified condition
// holds. Zero values mean "condition not specified".
type ApprovalRule struct {
	Name            string   `yaml:"name"`
	Enabled         bool     `yaml:"enabled"`
	MinConfidence   int      `yaml:"min_confidence"`
	MinSignificance int      `yaml:"min_significance"`
	AllowedTypes    []string `yaml:"allowed_types,omitempty"`
	MaxAgeMinutes   int      `yaml:"max_age_minutes,omitempty"`

	// ArchiveBelowSignificance, when positive, archives signals scoring
	// under the floor instead of leaving them pending. Off by default.
	ArchiveBelowSignificance int `yaml:"archive_below_significance,omitempty"`
}

// PublishingRule publishes a draft article when it is old enough and,
// if required, its linked signal is approved.
type PublishingRule struct {
	Name                  string `yaml:"name"`
	Enabled               bool   `yaml:"enabled"`
	MinArticleAgeMinutes  int    `yaml:"min_article_age_minutes"`
	RequireApprovedSignal bool   `yaml:"require_approved_signal"`
}

// RuleSet holds the ordered rule lists. Rules are evaluated top to bottom,
// first match wins.
type RuleSet struct {
	Approval   []ApprovalRule   `yaml:"approval"`
	Publishing []PublishingRule `yaml:"publishing"`
}

// DefaultRuleSet returns the built-in rules used when no rules file is
// configured.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Approval: []ApprovalRule{
			{
				Name:            "high-confidence-breaking",
				Enabled:         true,
				MinConfidence:   75,
				MinSignificance: 60,
				AllowedTypes:    []string{"breaking"},
				MaxAgeMinutes:   120,
			},
			{
				Name:            "strong-any-type",
				Enabled:         true,
				MinConfidence:   85,
				MinSignificance: 75,
			},
		},
		Publishing: []PublishingRule{
			{
				Name:                  "approved-signal",
				Enabled:               true,
				MinArticleAgeMinutes:  0,
				RequireApprovedSignal: true,
			},
		},
	}
}

// LoadRules reads a YAML rules file. A missing path returns the defaults.
func LoadRules(path string) (RuleSet, error) {
	if path == "" {
		return DefaultRuleSet(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuleSet(), nil
		}
		return RuleSet{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(rs.Approval) == 0 && len(rs.Publishing) == 0 {
		return RuleSet{}, fmt.Errorf("rules file %s defines no rules", path)
	}
	return rs, nil
}
