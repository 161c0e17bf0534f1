package marketplace

import (
	"errors"
	"testing"
)

func TestUpdateFee(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.engine.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Fee != 25 {
		t.Fatalf("initial fee = %d, want 25", cfg.Fee)
	}

	if err := env.engine.UpdateFee(env.call(env.collector1), 100); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.UpdateFee(env.pay(env.admin, 3), 100); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected payment mismatch, got %v", err)
	}
	if err := env.engine.UpdateFee(env.call(env.admin), 1000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := env.engine.UpdateFee(env.call(env.admin), MaxFee+1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount just above the cap, got %v", err)
	}
	if cfg, _ := env.engine.Config(); cfg.Fee != 25 {
		t.Fatalf("rejected update changed fee to %d", cfg.Fee)
	}
	if err := env.engine.UpdateFee(env.call(env.admin), 100); err != nil {
		t.Fatalf("update fee: %v", err)
	}
	if cfg, _ := env.engine.Config(); cfg.Fee != 100 {
		t.Fatalf("fee = %d, want 100", cfg.Fee)
	}

	id := env.mustCreate(t, env.artist1, env.offerParams(1, 10_000, 0, env.artist1))
	payout, err := env.engine.Collect(env.pay(env.collector1, 10_000), id)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if payout.Fee.Int64() != 1_000 {
		t.Fatalf("fee share = %s, want 1000", payout.Fee)
	}
}

func TestUpdateFeeRecipient(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateFeeRecipient(env.call(env.collector1), env.collector1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.UpdateFeeRecipient(env.pay(env.admin, 3), env.collector1); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected payment mismatch, got %v", err)
	}
	if err := env.engine.UpdateFeeRecipient(env.call(env.admin), env.collector1); err != nil {
		t.Fatalf("update fee recipient: %v", err)
	}
	if cfg, _ := env.engine.Config(); cfg.FeeRecipient != env.collector1 {
		t.Fatalf("fee recipient not updated")
	}

	id := env.mustCreate(t, env.artist1, env.offerParams(1, 10_000, 0, env.artist1))
	before := env.funds(t, env.collector1)
	if _, err := env.engine.Collect(env.pay(env.collector2, 10_000), id); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := env.funds(t, env.collector1) - before; got != 250 {
		t.Fatalf("new recipient received %d, want 250", got)
	}
	if got := env.funds(t, env.feeRecipient); got != 0 {
		t.Fatalf("old recipient received %d", got)
	}
}

func TestUpdateManagerHandsOverImmediately(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateManager(env.call(env.collector1), env.collector1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.UpdateManager(env.pay(env.admin, 3), env.collector1); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected payment mismatch, got %v", err)
	}
	if err := env.engine.UpdateManager(env.call(env.admin), env.collector1); err != nil {
		t.Fatalf("update manager: %v", err)
	}

	// The previous manager loses every administrative right at once.
	if err := env.engine.UpdateFee(env.call(env.admin), 50); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old manager rejected, got %v", err)
	}
	if err := env.engine.SetPause(env.call(env.admin), true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old manager rejected for pause, got %v", err)
	}
	if err := env.engine.UpdateManager(env.call(env.admin), env.admin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old manager unable to reclaim, got %v", err)
	}

	if err := env.engine.UpdateFee(env.call(env.collector1), 50); err != nil {
		t.Fatalf("new manager update fee: %v", err)
	}
	if err := env.engine.UpdateManager(env.call(env.collector1), env.admin); err != nil {
		t.Fatalf("new manager hands back: %v", err)
	}
	cfg, err := env.engine.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Manager != env.admin || cfg.Fee != 50 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestAdminEventsAreEmitted(t *testing.T) {
	env := newTestEnv(t)
	steps := []func() error{
		func() error { return env.engine.UpdateFee(env.call(env.admin), 30) },
		func() error { return env.engine.UpdateFeeRecipient(env.call(env.admin), env.collector2) },
		func() error { return env.engine.AddFA2(env.call(env.admin), env.newobjkt.Contract()) },
		func() error { return env.engine.RemoveFA2(env.call(env.admin), env.newobjkt.Contract()) },
		func() error { return env.engine.SetPause(env.call(env.admin), true) },
		func() error { return env.engine.UpdateManager(env.call(env.admin), env.collector1) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := []string{
		EventTypeFeeUpdated,
		EventTypeFeeRecipientUpdated,
		EventTypeFA2Added,
		EventTypeFA2Removed,
		EventTypePauseSet,
		EventTypeManagerUpdated,
	}
	got := env.recorder.Types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	records := env.recorder.Records()
	if records[0].Attributes["fee"] != "30" {
		t.Fatalf("fee attribute = %q", records[0].Attributes["fee"])
	}
	if records[4].Attributes["paused"] != "true" {
		t.Fatalf("paused attribute = %q", records[4].Attributes["paused"])
	}
}

func TestRejectedAdminCallsEmitNothing(t *testing.T) {
	env := newTestEnv(t)
	_ = env.engine.UpdateFee(env.call(env.collector1), 30)
	_ = env.engine.UpdateFee(env.call(env.admin), 1000)
	_ = env.engine.SetPause(env.pay(env.admin, 1), true)
	if got := env.recorder.Types(); len(got) != 0 {
		t.Fatalf("rejected calls emitted %v", got)
	}
}
