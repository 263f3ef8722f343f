// pkg/journal/journal.go
package journal

import (
	"time"

	"github.com/rustyeddy/commons/pkg/chain"
)

// Kind names a notification. Monitors and tests filter on it.
type Kind string

const (
	MemberRegistered    Kind = "member-registered"
	PointsAwarded       Kind = "points-awarded"
	BidReceived         Kind = "bid-received"
	AuctionEnded        Kind = "auction-ended"
	AuctionCancelled    Kind = "auction-cancelled"
	WithdrawalCompleted Kind = "withdrawal-completed"
	ProposalAdded       Kind = "proposal-added"
	Voted               Kind = "voted"
	QuorumFailed        Kind = "quorum-failed"
	ProposalClosed      Kind = "proposal-closed"
	ItemListed          Kind = "item-listed"
	ItemUnlisted        Kind = "item-unlisted"
	ItemUpdated         Kind = "item-updated"
	ItemPurchased       Kind = "item-purchased"
	AgreementCreated    Kind = "agreement-created"
	AgreementCompleted  Kind = "agreement-completed"
	TicketMinted        Kind = "ticket-minted"
)

var kinds = []Kind{
	MemberRegistered, PointsAwarded, BidReceived, AuctionEnded,
	AuctionCancelled, WithdrawalCompleted, ProposalAdded, Voted,
	QuorumFailed, ProposalClosed, ItemListed, ItemUnlisted, ItemUpdated,
	ItemPurchased, AgreementCreated, AgreementCompleted, TicketMinted,
}

// Kinds lists every notification kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one observable side effect of a committed operation.
type Event struct {
	ID      string
	Time    time.Time
	Kind    Kind
	Source  chain.Address // emitting engine
	Actor   chain.Address // caller
	Subject chain.Address // counterparty: winner, seller, renter...
	Ref     string        // item, proposal or agreement id
	Amount  chain.Wei
	Detail  string
}

type Journal interface {
	Record(Event) error
	Close() error
}
