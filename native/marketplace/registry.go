package marketplace

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	offerPrefix = []byte("marketplace/offer/")
	counterKey  = []byte("marketplace/counter")
	configKey   = []byte("marketplace/config")
	fa2Prefix   = []byte("marketplace/fa2/")
)

func offerKey(id uint64) []byte {
	key := make([]byte, 0, len(offerPrefix)+8)
	key = append(key, offerPrefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func fa2Key(contract [20]byte) []byte {
	key := make([]byte, 0, len(fa2Prefix)+20)
	key = append(key, fa2Prefix...)
	return append(key, contract[:]...)
}

// storedOffer is the RLP layout of an offer record. The id lives in the key.
type storedOffer struct {
	Issuer        [20]byte
	TokenContract [20]byte
	TokenID       uint64
	Amount        uint64
	UnitPrice     *big.Int
	Royalties     uint32
	Creator       [20]byte
}

// Registry is the offer registry: the id -> offer mapping, the append-only id
// counter, the configuration record and the token-contract allow-list.
type Registry struct {
	kv kv
}

// NewRegistry returns a registry reading and writing through store.
func NewRegistry(store kv) *Registry {
	return &Registry{kv: store}
}

// Counter returns the id the next inserted offer will receive.
func (r *Registry) Counter() (uint64, error) {
	raw, err := r.kv.Get(counterKey)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("marketplace: corrupt counter record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Insert stores offer under the next counter value and advances the counter.
// The offer's ID field is overwritten with the allocated id.
func (r *Registry) Insert(offer *Offer) (uint64, error) {
	if offer == nil {
		return 0, fmt.Errorf("%w: nil offer", ErrInvalidAmount)
	}
	if offer.Amount == 0 {
		return 0, fmt.Errorf("%w: offer amount must be positive", ErrInvalidAmount)
	}
	id, err := r.Counter()
	if err != nil {
		return 0, err
	}
	offer.ID = id
	if err := r.put(offer); err != nil {
		return 0, err
	}
	if err := r.kv.Put(counterKey, binary.BigEndian.AppendUint64(nil, id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

// Get loads the offer with the given id.
func (r *Registry) Get(id uint64) (*Offer, error) {
	raw, err := r.kv.Get(offerKey(id))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeOffer(id, raw)
}

// Decrement reduces the remaining amount of an offer by n and removes the
// record once nothing remains. It returns the updated offer.
func (r *Registry) Decrement(id, n uint64) (*Offer, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: decrement must be positive", ErrInvalidAmount)
	}
	offer, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if n > offer.Amount {
		return nil, fmt.Errorf("%w: offer %d has %d units left, need %d", ErrInsufficientEscrow, id, offer.Amount, n)
	}
	offer.Amount -= n
	if offer.Amount == 0 {
		if err := r.kv.Delete(offerKey(id)); err != nil {
			return nil, err
		}
		return offer, nil
	}
	if err := r.put(offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// Remove deletes the offer unconditionally.
func (r *Registry) Remove(id uint64) error {
	return r.kv.Delete(offerKey(id))
}

// Config loads the marketplace configuration.
func (r *Registry) Config() (Config, error) {
	raw, err := r.kv.Get(configKey)
	if isNotFound(err) {
		return Config{}, errNotInitialised
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := rlp.DecodeBytes(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("marketplace: decode config: %w", err)
	}
	return cfg, nil
}

// PutConfig replaces the marketplace configuration.
func (r *Registry) PutConfig(cfg Config) error {
	raw, err := rlp.EncodeToBytes(&cfg)
	if err != nil {
		return fmt.Errorf("marketplace: encode config: %w", err)
	}
	return r.kv.Put(configKey, raw)
}

// IsAllowed reports whether contract is on the token-contract allow-list.
func (r *Registry) IsAllowed(contract [20]byte) (bool, error) {
	_, err := r.kv.Get(fa2Key(contract))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetAllowed adds or removes contract from the allow-list.
func (r *Registry) SetAllowed(contract [20]byte, allowed bool) error {
	if allowed {
		return r.kv.Put(fa2Key(contract), []byte{1})
	}
	return r.kv.Delete(fa2Key(contract))
}

func (r *Registry) put(offer *Offer) error {
	price := offer.UnitPrice
	if price == nil {
		price = big.NewInt(0)
	}
	raw, err := rlp.EncodeToBytes(&storedOffer{
		Issuer:        offer.Issuer,
		TokenContract: offer.TokenContract,
		TokenID:       offer.TokenID,
		Amount:        offer.Amount,
		UnitPrice:     price,
		Royalties:     offer.Royalties,
		Creator:       offer.Creator,
	})
	if err != nil {
		return fmt.Errorf("marketplace: encode offer: %w", err)
	}
	return r.kv.Put(offerKey(offer.ID), raw)
}

func decodeOffer(id uint64, raw []byte) (*Offer, error) {
	var stored storedOffer
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("marketplace: decode offer %d: %w", id, err)
	}
	price := stored.UnitPrice
	if price == nil {
		price = big.NewInt(0)
	}
	return &Offer{
		ID:            id,
		Issuer:        stored.Issuer,
		TokenContract: stored.TokenContract,
		TokenID:       stored.TokenID,
		Amount:        stored.Amount,
		UnitPrice:     price,
		Royalties:     stored.Royalties,
		Creator:       stored.Creator,
	}, nil
}
