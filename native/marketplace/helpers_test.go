package marketplace

import (
	"bytes"
	"math/big"
	"testing"

	"swapmarket/core/events"
	"swapmarket/native/fa2"
	"swapmarket/state/bank"
	"swapmarket/storage"
)

const (
	objktID       = uint64(152)
	mintedAmount  = uint64(100)
	startingFunds = int64(1_000_000_000)
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type testEnv struct {
	db       *storage.MemDB
	engine   *Engine
	bank     *bank.Ledger
	objkt    *fa2.Ledger
	newobjkt *fa2.Ledger
	recorder *events.Recorder

	admin        [20]byte
	feeRecipient [20]byte
	artist1      [20]byte
	artist2      [20]byte
	collector1   [20]byte
	collector2   [20]byte
	custody      [20]byte
}

// newTestEnv deploys a marketplace with a 2.5% fee that only accepts the objkt
// contract. artist1 holds 100 editions of token 152 and has made the
// marketplace an operator for it; both collectors are funded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:           storage.NewMemDB(),
		admin:        newTestAddress(0x01),
		feeRecipient: newTestAddress(0x02),
		artist1:      newTestAddress(0x11),
		artist2:      newTestAddress(0x12),
		collector1:   newTestAddress(0x21),
		collector2:   newTestAddress(0x22),
		custody:      newTestAddress(0xEE),
		recorder:     events.NewRecorder(0),
	}
	env.bank = bank.NewLedger(env.db)
	env.objkt = fa2.NewLedger(newTestAddress(0xA1), env.db)
	env.newobjkt = fa2.NewLedger(newTestAddress(0xA2), env.db)
	registry := fa2.NewRegistry()
	registry.Register(env.objkt)
	registry.Register(env.newobjkt)
	resolver := LedgerResolverFunc(func(contract [20]byte) (TokenLedger, bool) {
		l, ok := registry.Ledger(contract)
		if !ok {
			return nil, false
		}
		return l, true
	})
	env.engine = NewEngine(env.db, resolver, env.bank, env.custody)
	env.engine.SetEmitter(env.recorder)
	if err := env.engine.Initialise(Genesis{
		Config: Config{
			Manager:      env.admin,
			FeeRecipient: env.feeRecipient,
			Fee:          25,
		},
		AllowedFA2s: [][20]byte{env.objkt.Contract()},
	}); err != nil {
		t.Fatalf("initialise: %v", err)
	}

	if err := env.objkt.Mint(env.artist1, objktID, mintedAmount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.objkt.AddOperator(env.artist1, env.custody, objktID); err != nil {
		t.Fatalf("add operator: %v", err)
	}
	for _, who := range [][20]byte{env.collector1, env.collector2} {
		if err := env.bank.Credit(who, big.NewInt(startingFunds)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	return env
}

func (env *testEnv) call(sender [20]byte) Call {
	return Call{Sender: sender}
}

func (env *testEnv) pay(sender [20]byte, value int64) Call {
	return Call{Sender: sender, Value: big.NewInt(value)}
}

func (env *testEnv) offerParams(amount uint64, price int64, royalties uint32, creator [20]byte) CreateOfferParams {
	return CreateOfferParams{
		TokenContract: env.objkt.Contract(),
		TokenID:       objktID,
		Amount:        amount,
		UnitPrice:     big.NewInt(price),
		Royalties:     royalties,
		Creator:       creator,
	}
}

func (env *testEnv) tokenBalance(t *testing.T, l *fa2.Ledger, owner [20]byte, tokenID uint64) uint64 {
	t.Helper()
	bal, err := l.BalanceOf(owner, tokenID)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	return bal
}

func (env *testEnv) funds(t *testing.T, owner [20]byte) int64 {
	t.Helper()
	bal, err := env.bank.Balance(owner)
	if err != nil {
		t.Fatalf("bank balance: %v", err)
	}
	return bal.Int64()
}

func (env *testEnv) counter(t *testing.T) uint64 {
	t.Helper()
	c, err := env.engine.Counter()
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	return c
}

func (env *testEnv) mustCreate(t *testing.T, sender [20]byte, p CreateOfferParams) uint64 {
	t.Helper()
	id, err := env.engine.CreateOffer(env.call(sender), p)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return id
}
