package marketplace

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejection wraps exactly one of them; classify with
// errors.Is.
var (
	ErrUnauthorized       = errors.New("marketplace: unauthorized")
	ErrInvalidAmount      = errors.New("marketplace: invalid amount")
	ErrNotFound           = errors.New("marketplace: offer not found")
	ErrNotAllowed         = errors.New("marketplace: not allowed")
	ErrPaymentMismatch    = errors.New("marketplace: payment mismatch")
	ErrInsufficientEscrow = errors.New("marketplace: insufficient escrow")
)

// ErrAlreadyInitialised is returned by Initialise on a deployed marketplace.
var ErrAlreadyInitialised = errors.New("marketplace: already initialised")

var (
	errNilState       = errors.New("marketplace: state not configured")
	errNotInitialised = errors.New("marketplace: not initialised")

	errPaused        = fmt.Errorf("%w: marketplace is paused", ErrNotAllowed)
	errValueAttached = fmt.Errorf("%w: call must not carry value", ErrPaymentMismatch)
	errNotManager    = fmt.Errorf("%w: caller is not the manager", ErrUnauthorized)
	errNotIssuer     = fmt.Errorf("%w: caller is not the offer issuer", ErrUnauthorized)
)
