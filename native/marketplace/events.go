package marketplace

import (
	"math/big"
	"strconv"

	"swapmarket/core/events"
	"swapmarket/crypto"
)

const (
	EventTypeOfferCreated        = "marketplace.offer.created"
	EventTypeOfferCollected      = "marketplace.offer.collected"
	EventTypeOfferCancelled      = "marketplace.offer.cancelled"
	EventTypeFeeUpdated          = "marketplace.fee.updated"
	EventTypeFeeRecipientUpdated = "marketplace.fee_recipient.updated"
	EventTypeManagerUpdated      = "marketplace.manager.updated"
	EventTypeFA2Added            = "marketplace.fa2.added"
	EventTypeFA2Removed          = "marketplace.fa2.removed"
	EventTypePauseSet            = "marketplace.pause.set"
)

func offerAttributes(o *Offer) map[string]string {
	price := o.UnitPrice
	if price == nil {
		price = big.NewInt(0)
	}
	return map[string]string{
		"id":            strconv.FormatUint(o.ID, 10),
		"issuer":        crypto.FormatAddress(o.Issuer),
		"tokenContract": crypto.FormatAddress(o.TokenContract),
		"tokenId":       strconv.FormatUint(o.TokenID, 10),
		"amount":        strconv.FormatUint(o.Amount, 10),
		"unitPrice":     price.String(),
		"royalties":     strconv.FormatUint(uint64(o.Royalties), 10),
		"creator":       crypto.FormatAddress(o.Creator),
	}
}

// NewOfferCreatedEvent returns the payload emitted when an offer is escrowed.
func NewOfferCreatedEvent(o *Offer) events.Record {
	return events.Record{Type: EventTypeOfferCreated, Attributes: offerAttributes(o)}
}

// NewOfferCollectedEvent returns the payload emitted for a single-unit sale.
// The amount attribute carries the units left after the sale.
func NewOfferCollectedEvent(o *Offer, buyer [20]byte, p Payout) events.Record {
	attrs := offerAttributes(o)
	attrs["buyer"] = crypto.FormatAddress(buyer)
	attrs["royaltyPaid"] = p.Royalty.String()
	attrs["feePaid"] = p.Fee.String()
	attrs["issuerPaid"] = p.Issuer.String()
	return events.Record{Type: EventTypeOfferCollected, Attributes: attrs}
}

// NewOfferCancelledEvent returns the payload emitted when the issuer withdraws
// the unsold escrow.
func NewOfferCancelledEvent(o *Offer) events.Record {
	return events.Record{Type: EventTypeOfferCancelled, Attributes: offerAttributes(o)}
}

func newAdminEvent(eventType string, attrs map[string]string) events.Record {
	return events.Record{Type: eventType, Attributes: attrs}
}
