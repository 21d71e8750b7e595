// Package router implements the category router: given free inquiry text,
// it resolves a product category and the supplier groups to fan out to.
// Rules are plain YAML configuration; matching is keyword-based.
package router

import (
	"log/slog"
	"strings"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
)

// CategoryRule maps a set of keywords to a category and its supplier groups.
type CategoryRule struct {
	// Name is the category identifier (e.g. "basin", "tile").
	Name string `yaml:"name"`

	// Keywords trigger this category when any of them appears in the text.
	Keywords []string `yaml:"keywords"`

	// Groups are the supplier group chats for this category.
	Groups []inquiry.TargetGroup `yaml:"groups"`
}

// Config holds the routing rules.
type Config struct {
	// Categories are evaluated against the inquiry text; the rule with the
	// most keyword hits wins, first rule breaking ties.
	Categories []CategoryRule `yaml:"categories"`

	// DefaultCategory, when set, is used for text matching no rule. It must
	// name one of Categories.
	DefaultCategory string `yaml:"default_category"`
}

// Router resolves inquiry text to a RoutingResult.
type Router struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Router from config.
func New(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:    cfg,
		logger: logger.With("component", "router"),
	}
}

// Route categorizes text and returns the target groups. A failed result
// (no matching rule, no default, or a category without groups) carries
// Success=false and an Err message; callers must check Success before
// creating a session.
func (r *Router) Route(text string) inquiry.RoutingResult {
	lowered := strings.ToLower(text)

	var best *CategoryRule
	bestHits := 0
	for i := range r.cfg.Categories {
		rule := &r.cfg.Categories[i]
		hits := 0
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			best = rule
			bestHits = hits
		}
	}

	if best == nil && r.cfg.DefaultCategory != "" {
		for i := range r.cfg.Categories {
			if r.cfg.Categories[i].Name == r.cfg.DefaultCategory {
				best = &r.cfg.Categories[i]
				break
			}
		}
	}

	if best == nil {
		r.logger.Debug("no category matched", "text", truncate(text, 80))
		return inquiry.RoutingResult{
			Success: false,
			Err:     "no category matched the inquiry text",
		}
	}
	if len(best.Groups) == 0 {
		return inquiry.RoutingResult{
			Success: false,
			Err:     "category " + best.Name + " has no supplier groups configured",
		}
	}

	groups := make([]inquiry.TargetGroup, len(best.Groups))
	copy(groups, best.Groups)

	r.logger.Info("inquiry routed",
		"category", best.Name,
		"groups", len(groups),
		"keyword_hits", bestHits,
	)

	return inquiry.RoutingResult{
		Success:      true,
		Category:     best.Name,
		TargetGroups: groups,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
