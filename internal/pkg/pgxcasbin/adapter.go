package pgxcasbin

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/persist"
	"github.com/samber/lo"
	"go.uber.org/atomic"
)

// Adapter persists Casbin policies in Postgres through pgx.
//
// The rule table must already exist; policies are seeded by migration and
// managed through the enforcer at runtime.
type Adapter struct {
	store    *ruleStore
	filtered *atomic.Bool
}

var (
	_ persist.Adapter                = (*Adapter)(nil)
	_ persist.ContextAdapter         = (*Adapter)(nil)
	_ persist.FilteredAdapter        = (*Adapter)(nil)
	_ persist.ContextFilteredAdapter = (*Adapter)(nil)
)

// Option configures a pgxcasbin Adapter.
type Option func(*Adapter)

// WithTableName overrides the default rule table name.
func WithTableName(tableName string) Option {
	return func(a *Adapter) {
		a.store.setTable(tableName)
	}
}

// NewAdapter creates a pgx-backed Casbin adapter after verifying the
// connection is alive.
func NewAdapter(ctx context.Context, db interface {
	driver.Pinger
	Commander
}, opts ...Option) (*Adapter, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, err
	}

	a := &Adapter{store: newRuleStore(db), filtered: atomic.NewBool(false)}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// LoadPolicyCtx loads every stored rule into the model.
func (a *Adapter) LoadPolicyCtx(ctx context.Context, m model.Model) error {
	a.filtered.Store(false)

	lines, err := a.store.loadAll(ctx)
	if err != nil {
		return err
	}

	return applyLines(m, lines)
}

// LoadFilteredPolicyCtx loads only rules matching the filter. The filter is
// map[ptype][][]fieldValues: conditions inside a ptype are OR-ed and empty
// strings skip a column. A nil filter falls back to a full load.
func (a *Adapter) LoadFilteredPolicyCtx(ctx context.Context, m model.Model, filter interface{}) error {
	if lo.IsNil(filter) {
		return a.LoadPolicyCtx(ctx, m)
	}

	ft, ok := filter.(map[string][][]string)
	if !ok {
		return fmt.Errorf("%w: got %T, expected map[string][][]string", ErrInvalidFilterType, filter)
	}

	a.filtered.Store(true)

	var lines [][]string
	for ptype, conditions := range ft {
		for _, condition := range conditions {
			matched, err := a.store.loadWhere(ctx, ptype, 0, condition...)
			if err != nil {
				return err
			}

			lines = append(lines, matched...)
		}
	}

	lines = lo.UniqBy(lines, func(line []string) string {
		return strings.Join(line, ",")
	})
	if len(lines) == 0 {
		return nil
	}

	return applyLines(m, lines)
}

// SavePolicyCtx replaces every stored rule with the model's current policy.
func (a *Adapter) SavePolicyCtx(ctx context.Context, m model.Model) error {
	return a.store.replaceAll(ctx, modelRules(m))
}

// AddPolicyCtx stores one rule.
func (a *Adapter) AddPolicyCtx(ctx context.Context, _ string, ptype string, rule []string) error {
	return a.store.insertRule(ctx, ptype, rule...)
}

// RemovePolicyCtx deletes one rule.
func (a *Adapter) RemovePolicyCtx(ctx context.Context, _ string, ptype string, rule []string) error {
	return a.store.deleteRule(ctx, ptype, rule...)
}

// RemoveFilteredPolicyCtx deletes the rules matching the field filter.
func (a *Adapter) RemoveFilteredPolicyCtx(ctx context.Context, _ string, ptype string, fieldIndex int, fieldValues ...string) error {
	return a.store.deleteFiltered(ctx, ptype, fieldIndex, fieldValues...)
}

// IsFilteredCtx reports whether the last load used a filter.
func (a *Adapter) IsFilteredCtx(context.Context) bool {
	return a.filtered.Load()
}

// The persist.Adapter and persist.FilteredAdapter methods delegate to their
// context-aware counterparts with a background context.

func (a *Adapter) LoadPolicy(m model.Model) error {
	return a.LoadPolicyCtx(context.Background(), m)
}

func (a *Adapter) LoadFilteredPolicy(m model.Model, filter interface{}) error {
	return a.LoadFilteredPolicyCtx(context.Background(), m, filter)
}

func (a *Adapter) SavePolicy(m model.Model) error {
	return a.SavePolicyCtx(context.Background(), m)
}

func (a *Adapter) AddPolicy(sec string, ptype string, rule []string) error {
	return a.AddPolicyCtx(context.Background(), sec, ptype, rule)
}

func (a *Adapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return a.RemovePolicyCtx(context.Background(), sec, ptype, rule)
}

func (a *Adapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	return a.RemoveFilteredPolicyCtx(context.Background(), sec, ptype, fieldIndex, fieldValues...)
}

func (a *Adapter) IsFiltered() bool {
	return a.IsFilteredCtx(context.Background())
}

// modelRules flattens the policy and grouping sections into ptype-prefixed
// rows ready for storage.
func modelRules(m model.Model) [][]string {
	var rules [][]string

	for _, section := range []string{"p", "g"} {
		for ptype, ast := range m[section] {
			for _, rule := range ast.Policy {
				rules = append(rules, prependPtype(ptype, rule))
			}
		}
	}

	return rules
}

func applyLines(m model.Model, lines [][]string) error {
	for _, line := range lines {
		if err := persist.LoadPolicyArray(line, m); err != nil {
			return err
		}
	}

	return nil
}
