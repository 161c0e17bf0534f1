package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swapmarket/crypto"

	"github.com/BurntSushi/toml"
)

// DefaultFeePermille is the platform fee a fresh deployment starts with (2.5%).
const DefaultFeePermille = 25

// Config captures the marketplace deployment parameters. Addresses are accepted
// in bech32 (mkt1...) or 0x-prefixed hex form.
type Config struct {
	Manager               string   `toml:"Manager"`
	ManagerKeystorePath   string   `toml:"ManagerKeystorePath"`
	FeeRecipient          string   `toml:"FeeRecipient"`
	FeePermille           uint32   `toml:"FeePermille"`
	AllowedTokenContracts []string `toml:"AllowedTokenContracts"`
	Paused                bool     `toml:"Paused"`
	// CustodyLabel seeds the derivation of the account that holds escrow.
	CustodyLabel string `toml:"CustodyLabel"`
}

type loadOptions struct {
	passphrase string
}

// Option customises Load.
type Option func(*loadOptions)

// WithKeystorePassphrase sets the passphrase used when a manager keystore has to
// be generated.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Load loads the configuration from the given path. A missing file is replaced
// by a default deployment whose manager key is generated into a keystore next to
// the config file.
func Load(path string, opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, o.passphrase)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "Fee" {
			return nil, fmt.Errorf("config file %s uses Fee; rename it to FeePermille", path)
		}
	}

	if strings.TrimSpace(cfg.Manager) == "" {
		if err := ensureKeystore(path, cfg, o.passphrase); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.CustodyLabel) == "" {
		cfg.CustodyLabel = defaultCustodyLabel
	}
	if cfg.AllowedTokenContracts == nil {
		cfg.AllowedTokenContracts = []string{}
	}
	return cfg, nil
}

const defaultCustodyLabel = "marketplace/custody"

// ensureKeystore fills in the manager from the configured keystore, generating
// a fresh key when none exists yet.
func ensureKeystore(configPath string, cfg *Config, passphrase string) error {
	keystorePath := cfg.ManagerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		generated, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, generated, passphrase); err != nil {
			return err
		}
		key = generated
	} else if err != nil {
		return err
	} else {
		loaded, loadErr := crypto.LoadFromKeystore(keystorePath, passphrase)
		if loadErr != nil {
			return fmt.Errorf("load manager keystore: %w", loadErr)
		}
		key = loaded
	}

	cfg.ManagerKeystorePath = keystorePath
	cfg.Manager = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default deployment.
func createDefault(path, passphrase string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	manager := key.PubKey().Address().String()
	cfg := &Config{
		Manager:               manager,
		ManagerKeystorePath:   keystorePath,
		FeeRecipient:          manager,
		FeePermille:           DefaultFeePermille,
		AllowedTokenContracts: []string{},
		CustodyLabel:          defaultCustodyLabel,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "manager.keystore")
}
