package permit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// RULE BUNDLE DISTRIBUTION
// ============================================================================

// BundleSubscriber receives signed rule bundles as rule sets change.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *RuleBundle) error
}

// BundleSubscriberFunc adapts a function to BundleSubscriber.
type BundleSubscriberFunc func(ctx context.Context, pub ed25519.PublicKey, bundle *RuleBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *RuleBundle) error {
	return f(ctx, pub, bundle)
}

// RuleDistributor signs rule snapshots from a store and fans them out to
// subscribers. Change notifications are non-blocking; signing keys rotate on
// an interval.
type RuleDistributor struct {
	store            Store
	log              logger.Logger
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan struct{}
	stopCh           chan struct{}
	subscribers      map[string]BundleSubscriber
	version          int
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type RuleDistributorOption func(*RuleDistributor)

// WithSigningKey seeds the distributor with an existing private key instead
// of a generated one.
func WithSigningKey(priv ed25519.PrivateKey) RuleDistributorOption {
	return func(d *RuleDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub, _ = d.priv.Public().(ed25519.PublicKey)
		}
	}
}

// WithRotationInterval overrides how often the signing key rotates.
func WithRotationInterval(interval time.Duration) RuleDistributorOption {
	return func(d *RuleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

// WithDistributorLogger replaces the distributor's logger.
func WithDistributorLogger(l logger.Logger) RuleDistributorOption {
	return func(d *RuleDistributor) {
		if l != nil {
			d.log = l
		}
	}
}

func NewRuleDistributor(store Store, opts ...RuleDistributorOption) (*RuleDistributor, error) {
	if store == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &RuleDistributor{
		store:            store,
		log:              logger.NewPhusluLogger(),
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan struct{}, 1024),
		stopCh:           make(chan struct{}),
		subscribers:      make(map[string]BundleSubscriber),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

func (d *RuleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-d.notifyCh:
				if err := d.distribute(ctx); err != nil {
					d.log.Error("rule bundle distribution failed", "error", err.Error())
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.log.Error("signing key rotation failed", "error", err.Error())
				}
			}
		}
	}()
}

func (d *RuleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyRuleChange queues a distribution pass. It never blocks; coalescing
// pending notifications is fine since every pass snapshots the full set.
func (d *RuleDistributor) NotifyRuleChange() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

func (d *RuleDistributor) RegisterSubscriber(id string, sub BundleSubscriber) {
	if id == "" || sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[id] = sub
}

func (d *RuleDistributor) UnregisterSubscriber(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, id)
}

func (d *RuleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	d.log.Info("signing key rotated")
	return nil
}

func (d *RuleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *RuleDistributor) distribute(ctx context.Context) error {
	rules, err := d.store.GetRules(ctx)
	if err != nil {
		return fmt.Errorf("snapshot rules: %w", err)
	}
	d.mu.Lock()
	d.version++
	version := d.version
	priv := d.priv
	d.mu.Unlock()

	bundle, err := SignRules(priv, rules, version)
	if err != nil {
		return fmt.Errorf("sign bundle: %w", err)
	}
	pub := d.CurrentPublicKey()
	for id, sub := range d.collectSubscribers() {
		if err := sub.OnBundle(ctx, pub, bundle); err != nil {
			d.log.Error("bundle subscriber failed", "subscriber", id, "error", err.Error())
		}
	}
	d.log.Debug("rule bundle distributed", "version", version, "rules", len(rules))
	return nil
}

func (d *RuleDistributor) collectSubscribers() map[string]BundleSubscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := make(map[string]BundleSubscriber, len(d.subscribers))
	for id, sub := range d.subscribers {
		subs[id] = sub
	}
	return subs
}

// EngineSubscriber returns a subscriber that verifies each bundle and
// replaces the target engine's rule set with its contents.
func EngineSubscriber(target *Engine) BundleSubscriber {
	return BundleSubscriberFunc(func(ctx context.Context, pub ed25519.PublicKey, bundle *RuleBundle) error {
		if err := bundle.Verify(pub); err != nil {
			return fmt.Errorf("verify bundle: %w", err)
		}
		return target.SetRules(ctx, bundle.Rules)
	})
}
