package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"swapmarket/core/events"
	"swapmarket/crypto"
	"swapmarket/native/fa2"
	"swapmarket/native/marketplace"
	"swapmarket/services/marketd/config"
	"swapmarket/state/bank"
	"swapmarket/storage"
)

var seededKey = []byte("marketd/devnet/seeded")

// Runtime bundles the state the daemon serves: the database, the currency
// bank, the hosted token ledgers and the marketplace engine.
type Runtime struct {
	DB     storage.Database
	Bank   *bank.Ledger
	Tokens *fa2.Registry
	Engine *marketplace.Engine
}

// OpenDatabase opens the configured storage backend.
func OpenDatabase(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		return storage.NewLevelDB(cfg.Path)
	case config.BackendSQLite:
		dsn, err := storage.FileDSN(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve storage DSN: %w", err)
		}
		return storage.NewSQLiteDB(dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ContractAddress resolves the address a devnet contract is hosted at.
func ContractAddress(c config.ContractConfig) ([20]byte, error) {
	if strings.TrimSpace(c.Address) != "" {
		return crypto.ParseAddress(c.Address)
	}
	return crypto.DeriveAddress("fa2/" + strings.TrimSpace(c.Label)), nil
}

// New wires the marketplace over db. On first start the marketplace is
// initialised from genesis, with every hosted devnet contract added to the
// allow-list, and the devnet mints and faucet credits are applied once.
func New(db storage.Database, genesis marketplace.Genesis, custody [20]byte, devnet config.DevnetConfig, emitter events.Emitter, logger *slog.Logger) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		DB:     db,
		Bank:   bank.NewLedger(db),
		Tokens: fa2.NewRegistry(),
	}

	contracts := make([][20]byte, len(devnet.Contracts))
	for i, c := range devnet.Contracts {
		addr, err := ContractAddress(c)
		if err != nil {
			return nil, fmt.Errorf("devnet contract %d: %w", i, err)
		}
		contracts[i] = addr
		rt.Tokens.Register(fa2.NewLedger(addr, db))
	}

	resolver := marketplace.LedgerResolverFunc(func(contract [20]byte) (marketplace.TokenLedger, bool) {
		l, ok := rt.Tokens.Ledger(contract)
		if !ok {
			return nil, false
		}
		return l, true
	})
	rt.Engine = marketplace.NewEngine(db, resolver, rt.Bank, custody)
	rt.Engine.SetLogger(logger)
	rt.Engine.SetEmitter(emitter)

	genesis.AllowedFA2s = append(append([][20]byte(nil), genesis.AllowedFA2s...), contracts...)
	switch err := rt.Engine.Initialise(genesis); {
	case err == nil:
		logger.Info("marketplace initialised", slog.Int("allowedContracts", len(genesis.AllowedFA2s)))
	case errors.Is(err, marketplace.ErrAlreadyInitialised):
		logger.Info("marketplace state loaded")
	default:
		return nil, fmt.Errorf("initialise marketplace: %w", err)
	}

	if err := rt.seed(devnet, contracts, custody, logger); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) seed(devnet config.DevnetConfig, contracts [][20]byte, custody [20]byte, logger *slog.Logger) error {
	if len(devnet.Contracts) == 0 && len(devnet.Faucet) == 0 {
		return nil
	}
	seeded, err := rt.DB.Has(seededKey)
	if err != nil {
		return err
	}
	if seeded {
		return nil
	}
	for i, c := range devnet.Contracts {
		ledger, _ := rt.Tokens.Ledger(contracts[i])
		for j, m := range c.Mints {
			owner, err := crypto.ParseAddress(m.Owner)
			if err != nil {
				return fmt.Errorf("devnet contract %d mint %d: %w", i, j, err)
			}
			if err := ledger.Mint(owner, m.TokenID, m.Amount); err != nil {
				return fmt.Errorf("devnet contract %d mint %d: %w", i, j, err)
			}
			if m.ApproveMarketplace {
				if err := ledger.AddOperator(owner, custody, m.TokenID); err != nil {
					return fmt.Errorf("devnet contract %d mint %d: %w", i, j, err)
				}
			}
		}
	}
	for i, credit := range devnet.Faucet {
		addr, err := crypto.ParseAddress(credit.Address)
		if err != nil {
			return fmt.Errorf("devnet faucet %d: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(credit.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("devnet faucet %d: invalid amount %q", i, credit.Amount)
		}
		if err := rt.Bank.Credit(addr, amount); err != nil {
			return fmt.Errorf("devnet faucet %d: %w", i, err)
		}
	}
	if err := rt.DB.Put(seededKey, []byte{1}); err != nil {
		return err
	}
	logger.Info("devnet seeded", slog.Int("contracts", len(devnet.Contracts)), slog.Int("faucetCredits", len(devnet.Faucet)))
	return nil
}
