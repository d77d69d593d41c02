package advisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sardine-ai/go-config-advisor/metrics"
	"github.com/sardine-ai/go-config-advisor/model"
)

// Advisor validates configurations and produces recommendations under a
// policy that may be replaced at any time.
type Advisor struct {
	mu     sync.RWMutex
	policy Policy
	rules  []Rule
}

// New creates an Advisor with the built-in rules.
func New(policy Policy) (*Advisor, error) {
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Advisor{policy: policy, rules: builtinRules()}, nil
}

func (a *Advisor) Policy() Policy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy
}

// SetPolicy swaps the active policy. An invalid policy is rejected and the
// previous one stays active.
func (a *Advisor) SetPolicy(policy Policy) error {
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.policy = policy
	a.mu.Unlock()
	logrus.WithField("disabled_rules", len(policy.DisabledRules)).Debug("Advisor policy updated")
	return nil
}

// Rules lists the built-in rules and whether the active policy disables them.
func (a *Advisor) Rules() []RuleInfo {
	policy := a.Policy()
	infos := make([]RuleInfo, 0, len(a.rules))
	for _, r := range a.rules {
		infos = append(infos, RuleInfo{ID: r.ID(), Description: r.Description(), Disabled: policy.disabled(r.ID())})
	}
	return infos
}

// Validate runs every enabled rule against a complete configuration.
func (a *Advisor) Validate(ctx context.Context, props *model.PropertySet, profile model.Profile) (*model.Report, error) {
	return a.run(ctx, props, profile, false)
}

// ValidateSnippet validates an isolated fragment, such as a code block in
// a guide. Rules that depend on keys being absent do not fire.
func (a *Advisor) ValidateSnippet(ctx context.Context, props *model.PropertySet, profile model.Profile) (*model.Report, error) {
	return a.run(ctx, props, profile, true)
}

// Recommend returns a configuration sized for profile that validates
// without warnings under the active policy.
func (a *Advisor) Recommend(profile model.Profile) (*Recommendation, error) {
	policy := a.Policy()
	profile, err := prepare(profile, policy)
	if err != nil {
		return nil, err
	}
	return recommend(profile, policy), nil
}

func prepare(profile model.Profile, policy Policy) (model.Profile, error) {
	if policy.Environment != "" {
		profile.Environment = policy.Environment
	}
	profile.Normalize()
	if err := profile.Validate(); err != nil {
		return profile, err
	}
	return profile, nil
}

func (a *Advisor) run(ctx context.Context, props *model.PropertySet, profile model.Profile, partial bool) (*model.Report, error) {
	start := time.Now()
	policy := a.Policy()
	profile, err := prepare(profile, policy)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = model.NewPropertySet()
	}

	c := newContext(props, profile, policy, partial)
	report := &model.Report{
		ID:          uuid.NewString(),
		Profile:     profile,
		Findings:    []model.Finding{},
		GeneratedAt: start.UTC(),
	}
	for _, r := range a.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if policy.disabled(r.ID()) {
			continue
		}
		for _, f := range r.Check(c) {
			if sev, ok := policy.SeverityOverrides[f.Rule]; ok {
				f.Severity = sev
			}
			report.Findings = append(report.Findings, f)
		}
	}
	report.Sort()

	result := "clean"
	if highest, ok := report.Max(); ok {
		result = highest.String()
	}
	for _, f := range report.Findings {
		metrics.RecordFinding(f.Rule, f.Severity.String())
	}
	metrics.RecordValidation(result, time.Since(start))
	logrus.WithFields(logrus.Fields{
		"report":   report.ID,
		"keys":     props.Len(),
		"findings": len(report.Findings),
		"partial":  partial,
	}).Debug("Validation finished")
	return report, nil
}
