package pgxcasbin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// UpdateType tags a policy change notification. The values ride on the
// wire, mirroring the casbin persist watcher method names.
type UpdateType string

const (
	Update                        UpdateType = "Update"
	UpdateForAddPolicy            UpdateType = "UpdateForAddPolicy"
	UpdateForRemovePolicy         UpdateType = "UpdateForRemovePolicy"
	UpdateForRemoveFilteredPolicy UpdateType = "UpdateForRemoveFilteredPolicy"
	UpdateForSavePolicy           UpdateType = "UpdateForSavePolicy"
	UpdateForAddPolicies          UpdateType = "UpdateForAddPolicies"
	UpdateForRemovePolicies       UpdateType = "UpdateForRemovePolicies"
	UpdateForUpdatePolicy         UpdateType = "UpdateForUpdatePolicy"
	UpdateForUpdatePolicies       UpdateType = "UpdateForUpdatePolicies"
)

const defaultChannel = "pgxcasbin_policy_events"

// Message is the payload exchanged between watcher instances. ID names
// the sender; the remaining fields carry the casbin update arguments.
type Message struct {
	Method      UpdateType `json:"method"`
	ID          string     `json:"id"`
	Sec         string     `json:"sec,omitempty"`
	Ptype       string     `json:"ptype,omitempty"`
	OldRules    [][]string `json:"old_rules,omitempty"`
	NewRules    [][]string `json:"new_rules,omitempty"`
	FieldIndex  int        `json:"field_index,omitempty"`
	FieldValues []string   `json:"field_values,omitempty"`
}

// OptionWatcher configures a Watcher instance.
type OptionWatcher struct {
	// Channel sets the Postgres listen channel.
	Channel string
	// Verbose enables payload logging.
	Verbose bool
	// LocalID identifies this instance; random when empty.
	LocalID string
	// NotifySelf also delivers events this instance sent.
	NotifySelf bool
}

func (o *OptionWatcher) fillDefaults() {
	if o.Channel == "" {
		o.Channel = defaultChannel
	}

	if o.LocalID == "" {
		o.LocalID = uuid.New().String()
	}
}

// Watcher propagates policy changes between instances over Postgres
// LISTEN/NOTIFY.
type Watcher struct {
	mu sync.RWMutex

	opt      OptionWatcher
	pool     *pgxpool.Pool
	callback func(string)
	cancel   context.CancelFunc
}

// NewWatcherWithPool creates a Watcher on an existing pgx pool. The listener
// goroutine reconnects with fibonacci backoff until ctx is canceled.
func NewWatcherWithPool(ctx context.Context, pool *pgxpool.Pool, opt OptionWatcher) (*Watcher, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Join(ErrPingPool, err)
	}

	opt.fillDefaults()

	listenCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		opt:    opt,
		pool:   pool,
		cancel: cancel,
	}

	go w.run(listenCtx)

	return w, nil
}

// DefaultCallback returns a callback that applies incoming messages to the
// enforcer without re-persisting them.
func DefaultCallback(e casbin.IEnforcer) func(string) {
	return func(payload string) {
		var m Message
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			slog.Error("casbin watcher failed to unmarshal payload", "payload", payload, "error", err)
			return
		}

		applyUpdate(e, m)
	}
}

// applyUpdate replays one notification against the local enforcer via
// the Self* methods, which skip persistence and watcher re-notification.
func applyUpdate(e casbin.IEnforcer, m Message) {
	var applied bool
	var err error

	switch m.Method {
	case Update, UpdateForSavePolicy:
		applied, err = true, e.LoadPolicy()

	case UpdateForAddPolicy:
		rule, ok := soleRule(m.NewRules)
		if !ok {
			slog.Warn("casbin watcher add policy without rules")
			return
		}
		applied, err = e.SelfAddPolicy(m.Sec, m.Ptype, rule)

	case UpdateForAddPolicies:
		applied, err = e.SelfAddPolicies(m.Sec, m.Ptype, m.NewRules)

	case UpdateForRemovePolicy:
		rule, ok := soleRule(m.NewRules)
		if !ok {
			slog.Warn("casbin watcher remove policy without rules")
			return
		}
		applied, err = e.SelfRemovePolicy(m.Sec, m.Ptype, rule)

	case UpdateForRemoveFilteredPolicy:
		applied, err = e.SelfRemoveFilteredPolicy(m.Sec, m.Ptype, m.FieldIndex, m.FieldValues...)

	case UpdateForRemovePolicies:
		applied, err = e.SelfRemovePolicies(m.Sec, m.Ptype, m.NewRules)

	case UpdateForUpdatePolicy:
		oldRule, okOld := soleRule(m.OldRules)
		newRule, okNew := soleRule(m.NewRules)
		if !okOld || !okNew {
			slog.Warn("casbin watcher update policy without rules")
			return
		}
		applied, err = e.SelfUpdatePolicy(m.Sec, m.Ptype, oldRule, newRule)

	case UpdateForUpdatePolicies:
		applied, err = e.SelfUpdatePolicies(m.Sec, m.Ptype, m.OldRules, m.NewRules)

	default:
		err = fmt.Errorf("%w: %s", ErrUnknownUpdateType, m.Method)
	}

	if err != nil {
		slog.Error("casbin watcher failed to apply update", "method", m.Method, "error", err)
	}

	if !applied {
		slog.Warn("casbin watcher update had no effect", "method", m.Method)
	}
}

func soleRule(rules [][]string) ([]string, bool) {
	if len(rules) == 0 {
		return nil, false
	}

	return rules[0], true
}

// SetUpdateCallback registers the handler invoked on incoming messages.
func (w *Watcher) SetUpdateCallback(callback func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callback = callback

	return nil
}

// Update notifies other instances to reload all policies.
func (w *Watcher) Update() error {
	return w.notifyRules(Update, "", "", nil, nil)
}

// UpdateForSavePolicy notifies other instances to reload after a full save.
func (w *Watcher) UpdateForSavePolicy(model.Model) error {
	return w.notifyRules(UpdateForSavePolicy, "", "", nil, nil)
}

// UpdateForAddPolicy notifies other instances about a single added rule.
func (w *Watcher) UpdateForAddPolicy(sec, ptype string, params ...string) error {
	return w.notifyRules(UpdateForAddPolicy, sec, ptype, nil, [][]string{params})
}

// UpdateForRemovePolicy notifies other instances about a single removed rule.
func (w *Watcher) UpdateForRemovePolicy(sec, ptype string, params ...string) error {
	return w.notifyRules(UpdateForRemovePolicy, sec, ptype, nil, [][]string{params})
}

// UpdateForAddPolicies notifies other instances about a batch of added rules.
func (w *Watcher) UpdateForAddPolicies(sec string, ptype string, rules ...[]string) error {
	return w.notifyRules(UpdateForAddPolicies, sec, ptype, nil, rules)
}

// UpdateForRemovePolicies notifies other instances about a batch of removed rules.
func (w *Watcher) UpdateForRemovePolicies(sec string, ptype string, rules ...[]string) error {
	return w.notifyRules(UpdateForRemovePolicies, sec, ptype, nil, rules)
}

// UpdateForUpdatePolicy notifies other instances about a replaced rule.
func (w *Watcher) UpdateForUpdatePolicy(sec string, ptype string, oldRule, newRule []string) error {
	return w.notifyRules(UpdateForUpdatePolicy, sec, ptype, [][]string{oldRule}, [][]string{newRule})
}

// UpdateForUpdatePolicies notifies other instances about a batch of replaced rules.
func (w *Watcher) UpdateForUpdatePolicies(sec string, ptype string, oldRules, newRules [][]string) error {
	return w.notifyRules(UpdateForUpdatePolicies, sec, ptype, oldRules, newRules)
}

// UpdateForRemoveFilteredPolicy notifies other instances about a filtered removal.
func (w *Watcher) UpdateForRemoveFilteredPolicy(sec, ptype string, fieldIndex int, fieldValues ...string) error {
	return w.notify(&Message{
		Method:      UpdateForRemoveFilteredPolicy,
		ID:          w.opt.LocalID,
		Sec:         sec,
		Ptype:       ptype,
		FieldIndex:  fieldIndex,
		FieldValues: fieldValues,
	})
}

// Close stops the listener goroutine.
func (w *Watcher) Close() {
	w.cancel()
}

func (w *Watcher) notifyRules(method UpdateType, sec, ptype string, oldRules, newRules [][]string) error {
	return w.notify(&Message{
		Method:   method,
		ID:       w.opt.LocalID,
		Sec:      sec,
		Ptype:    ptype,
		OldRules: oldRules,
		NewRules: newRules,
	})
}

func (w *Watcher) run(ctx context.Context) {
	backoff := retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := w.listen(ctx); errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			slog.Error("casbin watcher lost its listener", "error", err)
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		slog.Error("casbin watcher stopped", "error", err)
		return
	}

	slog.Info("casbin watcher closed")
}

// listen holds one pooled connection on LISTEN and feeds payloads to
// the callback until the connection or the context dies.
func (w *Watcher) listen(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return errors.Join(ErrAcquireConn, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "listen "+w.opt.Channel); err != nil {
		return fmt.Errorf("%w: %s", errors.Join(ErrListenChannel, err), w.opt.Channel)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		} else if err != nil {
			return errors.Join(ErrWaitNotification, err)
		}

		w.dispatch(notification.Payload)
	}
}

// dispatch drops messages this instance sent unless NotifySelf is set,
// then hands the payload to the registered callback.
func (w *Watcher) dispatch(payload string) {
	if w.opt.Verbose {
		slog.Info("casbin watcher received message",
			"channel", w.opt.Channel, "local_id", w.opt.LocalID, "payload", payload)
	}

	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		slog.Error("casbin watcher failed to unmarshal notification", "payload", payload, "error", err)
		return
	}

	if m.ID == w.opt.LocalID && !w.opt.NotifySelf {
		return
	}

	w.mu.RLock()
	cb := w.callback
	w.mu.RUnlock()

	if cb == nil {
		slog.Warn("casbin watcher has no callback, skipping update")
		return
	}

	cb(payload)
}

func (w *Watcher) notify(m *Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Join(ErrMarshalMessage, err)
	}

	cmd := fmt.Sprintf("select pg_notify('%s', $1)", w.opt.Channel)
	if _, err := w.pool.Exec(context.Background(), cmd, string(b)); err != nil {
		return fmt.Errorf("%w: %s", errors.Join(ErrNotifyMessage, err), string(b))
	}

	if w.opt.Verbose {
		slog.Info("casbin watcher sent message", "channel", w.opt.Channel, "payload", string(b))
	}

	return nil
}
