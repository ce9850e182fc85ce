package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
)

// Strategy names, persisted in recovery state.
const (
	StrategyNativePush = "native-push"
	StrategyWebPush    = "web-push"
	StrategyLocal      = "local-scheduling"
)

// keySubscription is the recovery-state key holding the push subscription
// handle.
const keySubscription = "push-subscription"

// NativePushStrategy is the top-ranked strategy: platform-native push
// subscriptions, viable only on profiles that pass the OS version and
// standalone-install gates.
type NativePushStrategy struct {
	profile DeviceProfile
	push    PushService
	kv      *db.KVStore
}

// NewNativePushStrategy creates the native push strategy.
func NewNativePushStrategy(profile DeviceProfile, push PushService,
	kv *db.KVStore) *NativePushStrategy {

	return &NativePushStrategy{
		profile: profile,
		push:    push,
		kv:      kv,
	}
}

// Name implements RegistrationStrategy.
func (n *NativePushStrategy) Name() string { return StrategyNativePush }

// TryRegister implements RegistrationStrategy. It subscribes through the
// push service and persists the handle for restore.
func (n *NativePushStrategy) TryRegister(
	ctx context.Context) (SupportLevel, error) {

	if n.push == nil || !n.profile.SupportsNativePush() {
		return SupportUnsupported, ErrUnsupportedPlatform
	}

	sub, err := n.push.Subscribe(ctx)
	if err != nil {
		return SupportUnsupported,
			fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	n.persistSubscription(ctx, sub)

	return SupportFull, nil
}

// Restore implements RegistrationStrategy. It verifies the persisted
// subscription is still live rather than prompting again.
func (n *NativePushStrategy) Restore(
	ctx context.Context) (SupportLevel, error) {

	if n.push == nil {
		return SupportUnsupported, ErrUnsupportedPlatform
	}

	current, err := n.push.Current(ctx)
	if err != nil {
		return SupportUnsupported,
			fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if current.IsNone() {
		return SupportUnsupported, ErrRegistrationFailed
	}

	return SupportFull, nil
}

// Teardown implements RegistrationStrategy.
func (n *NativePushStrategy) Teardown(ctx context.Context) error {
	if n.push == nil {
		return nil
	}

	if err := n.push.Unsubscribe(ctx); err != nil {
		return err
	}

	return n.kv.Delete(ctx, db.NSStrategy, keySubscription)
}

func (n *NativePushStrategy) persistSubscription(ctx context.Context,
	sub Subscription) {

	err := n.kv.Put(ctx, db.NSStrategy, keySubscription, sub)
	if err != nil {
		log.WarnS(ctx, "Failed to persist push subscription", err)
	}
}

// WebPushStrategy is the second-ranked strategy: the generic subscription
// API. Full support on open platforms, partial on restricted mobile when
// installed standalone, unavailable otherwise.
type WebPushStrategy struct {
	profile DeviceProfile
	push    PushService
	kv      *db.KVStore
}

// NewWebPushStrategy creates the web push strategy.
func NewWebPushStrategy(profile DeviceProfile, push PushService,
	kv *db.KVStore) *WebPushStrategy {

	return &WebPushStrategy{
		profile: profile,
		push:    push,
		kv:      kv,
	}
}

// Name implements RegistrationStrategy.
func (w *WebPushStrategy) Name() string { return StrategyWebPush }

func (w *WebPushStrategy) level() (SupportLevel, error) {
	switch {
	case w.push == nil:
		return SupportUnsupported, ErrUnsupportedPlatform

	case w.profile.Platform != RestrictedMobile:
		return SupportFull, nil

	case w.profile.InstalledStandalone:
		return SupportPartial, nil

	default:
		return SupportUnsupported, ErrUnsupportedPlatform
	}
}

// TryRegister implements RegistrationStrategy.
func (w *WebPushStrategy) TryRegister(
	ctx context.Context) (SupportLevel, error) {

	level, err := w.level()
	if err != nil {
		return SupportUnsupported, err
	}

	sub, err := w.push.Subscribe(ctx)
	if err != nil {
		return SupportUnsupported,
			fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if err := w.kv.Put(
		ctx, db.NSStrategy, keySubscription, sub,
	); err != nil {
		log.WarnS(ctx, "Failed to persist push subscription", err)
	}

	return level, nil
}

// Restore implements RegistrationStrategy.
func (w *WebPushStrategy) Restore(
	ctx context.Context) (SupportLevel, error) {

	level, err := w.level()
	if err != nil {
		return SupportUnsupported, err
	}

	current, err := w.push.Current(ctx)
	if err != nil {
		return SupportUnsupported,
			fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if current.IsNone() {
		return SupportUnsupported, ErrRegistrationFailed
	}

	return level, nil
}

// Teardown implements RegistrationStrategy.
func (w *WebPushStrategy) Teardown(ctx context.Context) error {
	if w.push == nil {
		return nil
	}

	if err := w.push.Unsubscribe(ctx); err != nil {
		return err
	}

	return w.kv.Delete(ctx, db.NSStrategy, keySubscription)
}

// LocalStrategy is the last-resort strategy: foreground polling plus the
// background periodic check, no push at all. It always registers, at partial
// support, so the chain never ends empty-handed on a permitted device.
type LocalStrategy struct {
	waker    PeriodicWaker
	interval time.Duration
	wake     func()
}

// NewLocalStrategy creates the local scheduling strategy. The interval is
// the requested periodic wake-up cadence; wake runs on every platform
// wake-up.
func NewLocalStrategy(waker PeriodicWaker, interval time.Duration,
	wake func()) *LocalStrategy {

	return &LocalStrategy{
		waker:    waker,
		interval: interval,
		wake:     wake,
	}
}

// Name implements RegistrationStrategy.
func (l *LocalStrategy) Name() string { return StrategyLocal }

// TryRegister implements RegistrationStrategy. The periodic waker is best
// effort: its absence degrades cadence, not capability, so registration
// succeeds either way.
func (l *LocalStrategy) TryRegister(
	ctx context.Context) (SupportLevel, error) {

	if l.waker != nil && l.waker.Supported() {
		err := l.waker.Register(ctx, l.interval, l.wake)
		if err != nil {
			log.WarnS(ctx, "Periodic waker registration failed, "+
				"relying on software fallback", err)
		}
	}

	return SupportPartial, nil
}

// Restore implements RegistrationStrategy.
func (l *LocalStrategy) Restore(
	ctx context.Context) (SupportLevel, error) {

	return l.TryRegister(ctx)
}

// Teardown implements RegistrationStrategy.
func (l *LocalStrategy) Teardown(ctx context.Context) error {
	if l.waker == nil || !l.waker.Supported() {
		return nil
	}

	return l.waker.Unregister(ctx)
}

var (
	_ RegistrationStrategy = (*NativePushStrategy)(nil)
	_ RegistrationStrategy = (*WebPushStrategy)(nil)
	_ RegistrationStrategy = (*LocalStrategy)(nil)
)
