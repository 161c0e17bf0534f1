package marketplace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"swapmarket/core/events"
	"swapmarket/crypto"
	"swapmarket/observability/logging"
	"swapmarket/storage"
)

// Engine runs the swap lifecycle (create, collect, cancel) and the
// administrative operations against the offer registry. Calls must be
// serialised by the caller: the engine assumes each operation runs to
// completion before the next one starts.
type Engine struct {
	db      storage.Database
	ledgers LedgerResolver
	bank    Bank
	custody [20]byte
	emitter events.Emitter
	logger  *slog.Logger
}

// NewEngine wires the engine with its state database, the token ledgers, the
// currency bank and the custody account that holds escrowed tokens and
// transiently receives payments.
func NewEngine(db storage.Database, ledgers LedgerResolver, bank Bank, custody [20]byte) *Engine {
	return &Engine{
		db:      db,
		ledgers: ledgers,
		bank:    bank,
		custody: custody,
		emitter: events.NoopEmitter{},
		logger:  slog.Default().With(slog.String("component", ModuleName)),
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger. Passing nil restores slog.Default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", ModuleName))
}

// Custody returns the account holding escrowed tokens.
func (e *Engine) Custody() [20]byte { return e.custody }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) begin() (*journal, *Registry, error) {
	if e == nil || e.db == nil || e.ledgers == nil || e.bank == nil {
		return nil, nil, errNilState
	}
	j := newJournal(e.db)
	return j, NewRegistry(j), nil
}

func (e *Engine) reject(op string, call Call, err error) error {
	e.logger.Debug("operation rejected",
		slog.String("op", op),
		logging.MaskField("caller", crypto.FormatAddress(call.Sender)),
		slog.String("reason", err.Error()))
	return err
}

// Initialise writes the deployment configuration and allow-list. It fails if
// the marketplace was already initialised.
func (e *Engine) Initialise(g Genesis) error {
	j, reg, err := e.begin()
	if err != nil {
		return err
	}
	if _, err := reg.Config(); err == nil {
		return ErrAlreadyInitialised
	} else if !errors.Is(err, errNotInitialised) {
		return err
	}
	if g.Config.Fee > MaxFee {
		return fmt.Errorf("%w: fee %d exceeds %d", ErrInvalidAmount, g.Config.Fee, MaxFee)
	}
	if err := reg.PutConfig(g.Config); err != nil {
		return err
	}
	for _, contract := range g.AllowedFA2s {
		if err := reg.SetAllowed(contract, true); err != nil {
			return err
		}
	}
	return j.commit()
}

// CreateOffer escrows p.Amount units of the caller's token with the
// marketplace and registers a new offer for them. It returns the offer id.
func (e *Engine) CreateOffer(call Call, p CreateOfferParams) (uint64, error) {
	const op = "create_offer"
	j, reg, err := e.begin()
	if err != nil {
		return 0, err
	}
	cfg, err := reg.Config()
	if err != nil {
		return 0, err
	}
	if cfg.Paused {
		return 0, e.reject(op, call, errPaused)
	}
	if call.hasValue() {
		return 0, e.reject(op, call, errValueAttached)
	}
	if p.Amount == 0 {
		return 0, e.reject(op, call, fmt.Errorf("%w: offer amount must be positive", ErrInvalidAmount))
	}
	price := p.UnitPrice
	if price == nil {
		price = big.NewInt(0)
	}
	if price.Sign() < 0 {
		return 0, e.reject(op, call, fmt.Errorf("%w: unit price must not be negative", ErrInvalidAmount))
	}
	allowed, err := reg.IsAllowed(p.TokenContract)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, e.reject(op, call, fmt.Errorf("%w: token contract %x is not on the allow-list", ErrNotAllowed, p.TokenContract))
	}
	ledger, ok := e.ledgers.Resolve(p.TokenContract)
	if !ok {
		return 0, e.reject(op, call, fmt.Errorf("%w: token contract %x is unavailable", ErrNotAllowed, p.TokenContract))
	}
	balance, err := ledger.BalanceOf(call.Sender, p.TokenID)
	if err != nil {
		return 0, err
	}
	if balance < p.Amount {
		return 0, e.reject(op, call, fmt.Errorf("%w: caller holds %d of token %d, offer needs %d", ErrInsufficientEscrow, balance, p.TokenID, p.Amount))
	}
	operator, err := ledger.IsOperator(call.Sender, e.custody, p.TokenID)
	if err != nil {
		return 0, err
	}
	if !operator {
		return 0, e.reject(op, call, fmt.Errorf("%w: marketplace is not an operator for token %d", ErrInsufficientEscrow, p.TokenID))
	}
	if p.Royalties > MaxRoyalties {
		return 0, e.reject(op, call, fmt.Errorf("%w: royalties %d exceed %d", ErrInvalidAmount, p.Royalties, MaxRoyalties))
	}

	offer := &Offer{
		Issuer:        call.Sender,
		TokenContract: p.TokenContract,
		TokenID:       p.TokenID,
		Amount:        p.Amount,
		UnitPrice:     new(big.Int).Set(price),
		Royalties:     p.Royalties,
		Creator:       p.Creator,
	}
	id, err := reg.Insert(offer)
	if err != nil {
		return 0, err
	}
	if err := ledger.Transfer(e.custody, call.Sender, e.custody, p.TokenID, p.Amount); err != nil {
		return 0, e.reject(op, call, fmt.Errorf("%w: escrow transfer: %v", ErrInsufficientEscrow, err))
	}
	if err := j.commit(); err != nil {
		if returnErr := ledger.Transfer(e.custody, e.custody, call.Sender, p.TokenID, p.Amount); returnErr != nil {
			e.logger.Error("escrow moved but offer not persisted",
				slog.Uint64("id", id), slog.Uint64("tokenId", p.TokenID), slog.Uint64("amount", p.Amount), slog.Any("error", returnErr))
		}
		return 0, fmt.Errorf("marketplace: persist offer: %w", err)
	}
	e.logger.Info("offer created", slog.Uint64("id", id), slog.Uint64("amount", p.Amount), slog.String("unitPrice", price.String()))
	e.emit(NewOfferCreatedEvent(offer))
	return id, nil
}

// Collect sells one unit of the offer to the caller. The attached value must
// equal the unit price exactly; it is split between the creator (royalty), the
// fee recipient and the issuer.
func (e *Engine) Collect(call Call, id uint64) (Payout, error) {
	const op = "collect"
	j, reg, err := e.begin()
	if err != nil {
		return Payout{}, err
	}
	cfg, err := reg.Config()
	if err != nil {
		return Payout{}, err
	}
	if cfg.Paused {
		return Payout{}, e.reject(op, call, errPaused)
	}
	offer, err := reg.Get(id)
	if err != nil {
		return Payout{}, e.reject(op, call, err)
	}
	if call.value().Cmp(offer.UnitPrice) != 0 {
		return Payout{}, e.reject(op, call, fmt.Errorf("%w: offer %d costs %s, got %s", ErrPaymentMismatch, id, offer.UnitPrice, call.value()))
	}
	ledger, ok := e.ledgers.Resolve(offer.TokenContract)
	if !ok {
		return Payout{}, e.reject(op, call, fmt.Errorf("%w: token contract %x is unavailable", ErrNotAllowed, offer.TokenContract))
	}
	payout, err := SplitPayment(offer.UnitPrice, offer.Royalties, cfg.Fee)
	if err != nil {
		return Payout{}, e.reject(op, call, err)
	}
	before := offer.Clone()
	remaining, err := reg.Decrement(id, 1)
	if err != nil {
		return Payout{}, e.reject(op, call, err)
	}
	// The unit is accounted for before any value or token moves.
	if err := j.commit(); err != nil {
		return Payout{}, fmt.Errorf("marketplace: persist offer %d: %w", id, err)
	}

	if err := e.bank.Transfer(call.Sender, e.custody, offer.UnitPrice); err != nil {
		e.restore(before)
		return Payout{}, e.reject(op, call, fmt.Errorf("%w: attached value unavailable: %v", ErrPaymentMismatch, err))
	}
	if err := ledger.Transfer(e.custody, e.custody, call.Sender, offer.TokenID, 1); err != nil {
		if refundErr := e.bank.Transfer(e.custody, call.Sender, offer.UnitPrice); refundErr != nil {
			e.logger.Error("refund after failed delivery", slog.Uint64("id", id), slog.Any("error", refundErr))
		}
		e.restore(before)
		return Payout{}, fmt.Errorf("%w: deliver unit of offer %d: %v", ErrInsufficientEscrow, id, err)
	}
	if err := e.payout(payout, offer.Creator, cfg.FeeRecipient, offer.Issuer); err != nil {
		e.logger.Error("payout failed", slog.Uint64("id", id), slog.Any("error", err))
		return Payout{}, fmt.Errorf("marketplace: payout offer %d: %w", id, err)
	}
	e.logger.Info("offer collected", slog.Uint64("id", id), slog.Uint64("remaining", remaining.Amount))
	e.emit(NewOfferCollectedEvent(remaining, call.Sender, payout))
	return payout, nil
}

// restore writes offer back after its committed change could not be settled.
// If that write fails too the offer stays short, which can strand escrow but
// never sells it twice.
func (e *Engine) restore(offer *Offer) {
	j := newJournal(e.db)
	err := NewRegistry(j).put(offer)
	if err == nil {
		err = j.commit()
	}
	if err != nil {
		e.logger.Error("offer restore failed",
			slog.Uint64("id", offer.ID), slog.Uint64("amount", offer.Amount), slog.Any("error", err))
	}
}

// payout sends each non-zero share out of custody.
func (e *Engine) payout(p Payout, creator, feeRecipient, issuer [20]byte) error {
	shares := []struct {
		to     [20]byte
		amount *big.Int
	}{
		{creator, p.Royalty},
		{feeRecipient, p.Fee},
		{issuer, p.Issuer},
	}
	for _, share := range shares {
		if share.amount == nil || share.amount.Sign() == 0 {
			continue
		}
		if err := e.bank.Transfer(e.custody, share.to, share.amount); err != nil {
			return err
		}
	}
	return nil
}

// CancelOffer returns the unsold escrow to the issuer and removes the offer.
// It is honoured while the marketplace is paused.
func (e *Engine) CancelOffer(call Call, id uint64) error {
	const op = "cancel_offer"
	j, reg, err := e.begin()
	if err != nil {
		return err
	}
	offer, err := reg.Get(id)
	if err != nil {
		return e.reject(op, call, err)
	}
	if offer.Issuer != call.Sender {
		return e.reject(op, call, errNotIssuer)
	}
	if call.hasValue() {
		return e.reject(op, call, errValueAttached)
	}
	ledger, ok := e.ledgers.Resolve(offer.TokenContract)
	if !ok {
		return e.reject(op, call, fmt.Errorf("%w: token contract %x is unavailable", ErrNotAllowed, offer.TokenContract))
	}
	if err := reg.Remove(id); err != nil {
		return err
	}
	// Remove the record first so a failed commit never releases escrow twice.
	if err := j.commit(); err != nil {
		return fmt.Errorf("marketplace: persist cancellation of offer %d: %w", id, err)
	}
	if err := ledger.Transfer(e.custody, e.custody, offer.Issuer, offer.TokenID, offer.Amount); err != nil {
		e.restore(offer)
		return fmt.Errorf("%w: return escrow of offer %d: %v", ErrInsufficientEscrow, id, err)
	}
	e.logger.Info("offer cancelled", slog.Uint64("id", id), slog.Uint64("returned", offer.Amount))
	e.emit(NewOfferCancelledEvent(offer))
	return nil
}

// Offer returns a copy of the offer with the given id.
func (e *Engine) Offer(id uint64) (*Offer, error) {
	if e == nil || e.db == nil {
		return nil, errNilState
	}
	return NewRegistry(e.db).Get(id)
}

// Offers returns every live offer in ascending id order.
func (e *Engine) Offers() ([]*Offer, error) {
	if e == nil || e.db == nil {
		return nil, errNilState
	}
	var (
		out     []*Offer
		iterErr error
	)
	err := e.db.Iterate(offerPrefix, func(key, value []byte) bool {
		if len(key) != len(offerPrefix)+8 {
			return true
		}
		offer, err := decodeOffer(binary.BigEndian.Uint64(key[len(offerPrefix):]), value)
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, offer)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// Counter returns the id the next offer will receive.
func (e *Engine) Counter() (uint64, error) {
	if e == nil || e.db == nil {
		return 0, errNilState
	}
	return NewRegistry(e.db).Counter()
}

// Config returns the current configuration.
func (e *Engine) Config() (Config, error) {
	if e == nil || e.db == nil {
		return Config{}, errNilState
	}
	return NewRegistry(e.db).Config()
}

// IsAllowed reports whether new offers may be created against contract.
func (e *Engine) IsAllowed(contract [20]byte) (bool, error) {
	if e == nil || e.db == nil {
		return false, errNilState
	}
	return NewRegistry(e.db).IsAllowed(contract)
}
