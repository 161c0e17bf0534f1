package config

import (
	"fmt"
	"strings"

	"swapmarket/crypto"
	"swapmarket/native/marketplace"
)

// Validate checks the deployment parameters before they seed a marketplace.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if _, err := crypto.ParseAddress(c.Manager); err != nil {
		return fmt.Errorf("invalid Manager: %w", err)
	}
	if _, err := crypto.ParseAddress(c.FeeRecipient); err != nil {
		return fmt.Errorf("invalid FeeRecipient: %w", err)
	}
	if c.FeePermille > marketplace.MaxFee {
		return fmt.Errorf("invalid FeePermille: %d exceeds %d", c.FeePermille, marketplace.MaxFee)
	}
	seen := make(map[[20]byte]struct{}, len(c.AllowedTokenContracts))
	for i, raw := range c.AllowedTokenContracts {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid AllowedTokenContracts[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("invalid AllowedTokenContracts[%d]: duplicate %s", i, raw)
		}
		seen[addr] = struct{}{}
	}
	if strings.TrimSpace(c.CustodyLabel) == "" {
		return fmt.Errorf("invalid CustodyLabel: must not be empty")
	}
	return nil
}

// Custody returns the derived escrow account.
func (c *Config) Custody() [20]byte {
	return crypto.DeriveAddress(c.CustodyLabel)
}

// Genesis validates the parameters and converts them into the marketplace seed.
func (c *Config) Genesis() (marketplace.Genesis, error) {
	if err := c.Validate(); err != nil {
		return marketplace.Genesis{}, err
	}
	manager, _ := crypto.ParseAddress(c.Manager)
	recipient, _ := crypto.ParseAddress(c.FeeRecipient)
	g := marketplace.Genesis{
		Config: marketplace.Config{
			Manager:      manager,
			FeeRecipient: recipient,
			Fee:          c.FeePermille,
			Paused:       c.Paused,
		},
	}
	for _, raw := range c.AllowedTokenContracts {
		addr, _ := crypto.ParseAddress(raw)
		g.AllowedFA2s = append(g.AllowedFA2s, addr)
	}
	return g, nil
}
