package marketplace

import (
	"fmt"
	"log/slog"
	"strconv"

	"swapmarket/crypto"
)

// admin loads the configuration and checks that the caller is the manager and
// attached no value. Pausing never blocks administrative calls.
func (e *Engine) admin(op string, call Call) (*journal, *Registry, Config, error) {
	j, reg, err := e.begin()
	if err != nil {
		return nil, nil, Config{}, err
	}
	cfg, err := reg.Config()
	if err != nil {
		return nil, nil, Config{}, err
	}
	if call.Sender != cfg.Manager {
		return nil, nil, Config{}, e.reject(op, call, errNotManager)
	}
	if call.hasValue() {
		return nil, nil, Config{}, e.reject(op, call, errValueAttached)
	}
	return j, reg, cfg, nil
}

func (e *Engine) commitConfig(op string, j *journal, reg *Registry, cfg Config) error {
	if err := reg.PutConfig(cfg); err != nil {
		return err
	}
	if err := j.commit(); err != nil {
		return fmt.Errorf("marketplace: persist %s: %w", op, err)
	}
	return nil
}

// UpdateFee replaces the platform fee (permille). Values above MaxFee are
// rejected.
func (e *Engine) UpdateFee(call Call, fee uint32) error {
	const op = "update_fee"
	j, reg, cfg, err := e.admin(op, call)
	if err != nil {
		return err
	}
	if fee > MaxFee {
		return e.reject(op, call, fmt.Errorf("%w: fee %d exceeds %d", ErrInvalidAmount, fee, MaxFee))
	}
	cfg.Fee = fee
	if err := e.commitConfig(op, j, reg, cfg); err != nil {
		return err
	}
	e.logger.Info("fee updated", slog.Uint64("fee", uint64(fee)))
	e.emit(newAdminEvent(EventTypeFeeUpdated, map[string]string{"fee": strconv.FormatUint(uint64(fee), 10)}))
	return nil
}

// UpdateFeeRecipient replaces the account receiving platform fees.
func (e *Engine) UpdateFeeRecipient(call Call, recipient [20]byte) error {
	const op = "update_fee_recipient"
	j, reg, cfg, err := e.admin(op, call)
	if err != nil {
		return err
	}
	cfg.FeeRecipient = recipient
	if err := e.commitConfig(op, j, reg, cfg); err != nil {
		return err
	}
	e.logger.Info("fee recipient updated")
	e.emit(newAdminEvent(EventTypeFeeRecipientUpdated, map[string]string{"feeRecipient": crypto.FormatAddress(recipient)}))
	return nil
}

// UpdateManager hands administrative authority to manager. The current manager
// loses authority as soon as the call commits; only the new manager can issue
// the next administrative call, including the next UpdateManager.
func (e *Engine) UpdateManager(call Call, manager [20]byte) error {
	const op = "update_manager"
	j, reg, cfg, err := e.admin(op, call)
	if err != nil {
		return err
	}
	previous := cfg.Manager
	cfg.Manager = manager
	if err := e.commitConfig(op, j, reg, cfg); err != nil {
		return err
	}
	e.logger.Info("manager updated")
	e.emit(newAdminEvent(EventTypeManagerUpdated, map[string]string{
		"previous": crypto.FormatAddress(previous),
		"manager":  crypto.FormatAddress(manager),
	}))
	return nil
}

// AddFA2 allows new offers against the token contract.
func (e *Engine) AddFA2(call Call, contract [20]byte) error {
	return e.setAllowed("add_fa2", call, contract, true)
}

// RemoveFA2 blocks new offers against the token contract. Existing offers stay
// collectable and cancellable.
func (e *Engine) RemoveFA2(call Call, contract [20]byte) error {
	return e.setAllowed("remove_fa2", call, contract, false)
}

func (e *Engine) setAllowed(op string, call Call, contract [20]byte, allowed bool) error {
	j, reg, _, err := e.admin(op, call)
	if err != nil {
		return err
	}
	if err := reg.SetAllowed(contract, allowed); err != nil {
		return err
	}
	if err := j.commit(); err != nil {
		return fmt.Errorf("marketplace: persist %s: %w", op, err)
	}
	eventType := EventTypeFA2Removed
	if allowed {
		eventType = EventTypeFA2Added
	}
	e.logger.Info("allow-list updated", slog.String("op", op))
	e.emit(newAdminEvent(eventType, map[string]string{"tokenContract": crypto.FormatAddress(contract)}))
	return nil
}

// SetPause toggles the pause flag. While paused CreateOffer and Collect are
// rejected; CancelOffer and administrative calls keep working.
func (e *Engine) SetPause(call Call, paused bool) error {
	const op = "set_pause"
	j, reg, cfg, err := e.admin(op, call)
	if err != nil {
		return err
	}
	cfg.Paused = paused
	if err := e.commitConfig(op, j, reg, cfg); err != nil {
		return err
	}
	e.logger.Info("pause flag set", slog.Bool("paused", paused))
	e.emit(newAdminEvent(EventTypePauseSet, map[string]string{"paused": strconv.FormatBool(paused)}))
	return nil
}

// IsPaused reports whether module is paused. It lets the engine serve as a
// pause view for callers that gate work per module.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName {
		return false
	}
	cfg, err := e.Config()
	return err == nil && cfg.Paused
}
