package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"swapmarket/cmd/internal/passphrase"
	"swapmarket/config"
	"swapmarket/crypto"
	marketd "swapmarket/services/marketd/config"
	"swapmarket/services/marketd/runtime"
	"swapmarket/services/marketd/server"
)

const (
	keygenCommand   = "keygen"
	tokenCommand    = "token"
	validateCommand = "validate-config"
	addressCommand  = "address"

	defaultPassEnv   = "MARKETD_KEYSTORE_PASSPHRASE"
	defaultSecretEnv = "MARKETD_JWT_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case validateCommand:
		err = runValidate(os.Args[2:], os.Stdout)
	case addressCommand:
		err = runAddress(os.Args[2:], os.Stdout)
	default:
		usage(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "account.keystore", "Output path for the generated keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	secret, err := passphrase.NewSource(*passEnv, "account keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, secret); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(out, "Wrote keystore to %s\nAddress: %s\n", *keystorePath, key.PubKey().Address().String())
	return nil
}

// runToken signs a caller token for marketd. The subject is either given
// directly or read from a keystore.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("address", "", "Caller address the token is issued for")
	keystorePath := fs.String("keystore", "", "Keystore holding the caller key (alternative to --address)")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC signing secret")
	issuer := fs.String("issuer", "marketctl", "Token issuer claim")
	audience := fs.String("audience", "marketd", "Token audience claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *keystorePath != "" {
		if *subject != "" {
			return fmt.Errorf("use either --address or --keystore")
		}
		secret, err := passphrase.NewSource(*passEnv, "account keystore").Get()
		if err != nil {
			return err
		}
		key, err := crypto.LoadFromKeystore(*keystorePath, secret)
		if err != nil {
			return fmt.Errorf("load keystore: %w", err)
		}
		*subject = key.PubKey().Address().String()
	}
	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("--address or --keystore is required")
	}
	secret, ok := os.LookupEnv(*secretEnv)
	if !ok {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	token, err := server.IssueToken(secret, strings.TrimSpace(*subject), *issuer, *audience, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// runValidate loads the daemon and deployment configuration and prints the
// addresses marketd will serve.
func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(validateCommand, flag.ContinueOnError)
	cfgPath := fs.String("config", "services/marketd/config.yaml", "Path to the marketd configuration file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := marketd.Load(*cfgPath)
	if err != nil {
		return err
	}
	secret, err := passphrase.NewSource(*passEnv, "manager keystore").Get()
	if err != nil {
		return err
	}
	market, err := config.Load(cfg.Deployment, config.WithKeystorePassphrase(secret))
	if err != nil {
		return err
	}
	if err := market.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Manager:       %s\n", market.Manager)
	fmt.Fprintf(out, "Fee recipient: %s\n", market.FeeRecipient)
	fmt.Fprintf(out, "Fee:           %d permille\n", market.FeePermille)
	fmt.Fprintf(out, "Custody:       %s\n", crypto.FormatAddress(market.Custody()))
	for _, c := range cfg.Devnet.Contracts {
		addr, err := runtime.ContractAddress(c)
		if err != nil {
			return fmt.Errorf("devnet contract %s: %w", c.Label, err)
		}
		fmt.Fprintf(out, "Contract %-6s %s\n", c.Label+":", crypto.FormatAddress(addr))
	}
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	label := fs.String("label", "", "Derivation label, e.g. marketplace/custody or fa2/objkt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*label) == "" {
		return fmt.Errorf("--label is required")
	}
	fmt.Fprintln(out, crypto.FormatAddress(crypto.DeriveAddress(strings.TrimSpace(*label))))
	return nil
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "marketctl <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintf(out, "  %s            Generate an account key into an encrypted keystore\n", keygenCommand)
	fmt.Fprintf(out, "  %s             Sign a caller token for marketd\n", tokenCommand)
	fmt.Fprintf(out, "  %s   Check the marketd and deployment configuration\n", validateCommand)
	fmt.Fprintf(out, "  %s           Derive an address from a label\n", addressCommand)
}
