package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"swapmarket/crypto"
)

const testKeystorePassphrase = "test-passphrase"

func testAddress(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FormatAddress(raw)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesDeployment(t *testing.T) {
	path := writeConfig(t, `Manager = "`+testAddress(0x01)+`"
FeeRecipient = "0x0202020202020202020202020202020202020202"
FeePermille = 25
AllowedTokenContracts = ["`+testAddress(0xA1)+`", "0xa2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2a2"]
Paused = true
`)
	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.FeePermille != 25 || !cfg.Paused {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.CustodyLabel != defaultCustodyLabel {
		t.Fatalf("custody label = %q", cfg.CustodyLabel)
	}
	if cfg.ManagerKeystorePath != "" {
		t.Fatalf("keystore generated although a manager was configured")
	}

	g, err := cfg.Genesis()
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if g.Config.Manager[0] != 0x01 || g.Config.FeeRecipient[0] != 0x02 || g.Config.Fee != 25 || !g.Config.Paused {
		t.Fatalf("unexpected genesis config: %+v", g.Config)
	}
	if len(g.AllowedFA2s) != 2 || g.AllowedFA2s[0][0] != 0xA1 || g.AllowedFA2s[1][0] != 0xA2 {
		t.Fatalf("unexpected allow-list: %x", g.AllowedFA2s)
	}
	if cfg.Custody() != crypto.DeriveAddress(defaultCustodyLabel) {
		t.Fatalf("custody address not derived from label")
	}
}

func TestLoadRejectsLegacyFeeField(t *testing.T) {
	path := writeConfig(t, `Manager = "`+testAddress(0x01)+`"
Fee = 25
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "FeePermille") {
		t.Fatalf("expected legacy field error, got %v", err)
	}
}

func TestLoadCreatesDefaultDeployment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "market.toml")
	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.FeePermille != DefaultFeePermille {
		t.Fatalf("fee = %d, want %d", cfg.FeePermille, DefaultFeePermille)
	}
	if cfg.Manager == "" || cfg.FeeRecipient != cfg.Manager {
		t.Fatalf("unexpected manager/recipient: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	key, err := crypto.LoadFromKeystore(cfg.ManagerKeystorePath, testKeystorePassphrase)
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if key.PubKey().Address().String() != cfg.Manager {
		t.Fatalf("manager does not match generated key")
	}

	reloaded, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Manager != cfg.Manager {
		t.Fatalf("manager changed on reload: %s vs %s", reloaded.Manager, cfg.Manager)
	}
}

func TestLoadFillsManagerFromExistingKeystore(t *testing.T) {
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "ops.keystore")
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := crypto.SaveToKeystore(keystorePath, key, testKeystorePassphrase); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	path := filepath.Join(dir, "market.toml")
	contents := `ManagerKeystorePath = "` + filepath.ToSlash(keystorePath) + `"
FeeRecipient = "` + testAddress(0x02) + `"
FeePermille = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Manager != key.PubKey().Address().String() {
		t.Fatalf("manager = %s, want keystore address", cfg.Manager)
	}
	if _, err := Load(path, WithKeystorePassphrase("wrong")); err != nil {
		t.Fatalf("persisted manager should not need the keystore again: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Manager:               testAddress(0x01),
			FeeRecipient:          testAddress(0x02),
			FeePermille:           25,
			AllowedTokenContracts: []string{testAddress(0xA1)},
			CustodyLabel:          defaultCustodyLabel,
		}
	}
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing manager", func(c *Config) { c.Manager = "" }, "Manager"},
		{"foreign prefix", func(c *Config) { c.FeeRecipient = "cosmos1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu" }, "FeeRecipient"},
		{"fee above cap", func(c *Config) { c.FeePermille = 251 }, "FeePermille"},
		{"bad contract", func(c *Config) { c.AllowedTokenContracts = []string{"nope"} }, "AllowedTokenContracts[0]"},
		{"duplicate contract", func(c *Config) {
			c.AllowedTokenContracts = append(c.AllowedTokenContracts, "0xa1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1")
		}, "duplicate"},
		{"empty custody label", func(c *Config) { c.CustodyLabel = " " }, "CustodyLabel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
			if _, err := cfg.Genesis(); err == nil {
				t.Fatalf("genesis accepted invalid config")
			}
		})
	}
}
