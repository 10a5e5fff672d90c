package risk

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FlagRuleEngine evaluates tenant-defined CEL flag rules against a
// detection in progress. Rules are compiled once on load and evaluated
// in parallel with bounded concurrency.
type FlagRuleEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledFlagRule
	maxWorkers    int
}

// CompiledFlagRule holds a pre-compiled CEL program.
type CompiledFlagRule struct {
	Config  *domain.FlagRule
	Program cel.Program
}

// NewFlagRuleEngine creates a flag rule engine.
func NewFlagRuleEngine(maxWorkers int) (*FlagRuleEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("domain", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("categories", cel.ListType(cel.StringType)),
		cel.Variable("flags", cel.ListType(cel.StringType)),
		cel.Variable("detectors", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("confidence", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &FlagRuleEngine{
		env:           env,
		compiledRules: make(map[string]*CompiledFlagRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *FlagRuleEngine) ValidateRule(cfg *domain.FlagRule) error {
	if cfg == nil {
		return fmt.Errorf("flag rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *FlagRuleEngine) LoadRule(cfg *domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// ReloadRules clears all existing rules and loads new ones. This
// enables hot-reloading of rules from the database.
func (e *FlagRuleEngine) ReloadRules(configs []*domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledFlagRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the configs of all loaded rules, sorted by ID.
func (e *FlagRuleEngine) GetLoadedRules() []*domain.FlagRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.FlagRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *FlagRuleEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// RuleInput is the activation state a detection exposes to rules.
type RuleInput struct {
	Domain         domain.AnalysisDomain
	Score          float64 // aggregate before rule flags
	Categories     []string
	FlagTypes      []string
	DetectorScores map[string]float64
	Confidence     int
}

// Evaluate runs every loaded rule that applies to the input's domain
// and returns a flag per rule whose expression is true. Output order is
// rule-ID order so downstream narrative stays deterministic. A rule
// that errors at evaluation time yields no flag.
func (e *FlagRuleEngine) Evaluate(ctx context.Context, input *RuleInput) []domain.RiskFlag {
	e.mu.RLock()
	rules := make([]*CompiledFlagRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.AppliesTo(input.Domain) {
			rules = append(rules, rule)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	activation := map[string]any{
		"domain":     string(input.Domain),
		"score":      input.Score,
		"categories": input.Categories,
		"flags":      input.FlagTypes,
		"detectors":  input.DetectorScores,
		"confidence": input.Confidence,
	}

	results := make([]*domain.RiskFlag, len(rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledFlagRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := r.Program.Eval(activation)
			if err != nil || !toBool(out) {
				return
			}
			results[idx] = &domain.RiskFlag{
				Type:         r.Config.Name,
				Severity:     r.Config.Severity,
				Description:  r.Config.Description,
				Contribution: r.Config.Contribution,
				Source:       "rule",
			}
		}(i, rule)
	}

	wg.Wait()

	flags := make([]domain.RiskFlag, 0, len(rules))
	for _, f := range results {
		if f != nil {
			flags = append(flags, *f)
		}
	}
	return flags
}

func toBool(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

func (e *FlagRuleEngine) compileRule(cfg *domain.FlagRule) (*CompiledFlagRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledFlagRule{Config: cfg, Program: program}, nil
}

// Close cleans up the engine.
func (e *FlagRuleEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledFlagRule)
	return nil
}
