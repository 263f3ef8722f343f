package auction

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
	"github.com/rustyeddy/commons/pkg/rental"
)

var (
	ErrNotAMember        = chain.Reject(chain.ErrUnauthorized, "Not authorized to place a bid. Sign up on Profile")
	ErrAuctionNotOpen    = chain.Reject(chain.ErrInvalidState, "auction is not open")
	ErrAuctionNotEnded   = chain.Reject(chain.ErrInvalidState, "auction has not ended")
	ErrOwnerCannotBid    = chain.Reject(chain.ErrUnauthorized, "owner cannot bid on own auction")
	ErrNotOwner          = chain.Reject(chain.ErrUnauthorized, "only the owner may do this before the auction expires")
	ErrZeroBid           = chain.Reject(chain.ErrInsufficientValue, "bid carries no value")
	ErrBidTooLow         = chain.Reject(chain.ErrInsufficientValue, "bid must exceed the highest binding bid")
	ErrNothingToWithdraw = chain.Reject(chain.ErrInvalidState, "nothing to withdraw")
)

type State int

const (
	Open State = iota
	Ended
	Cancelled
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Ended:
		return "Ended"
	case Cancelled:
		return "Cancelled"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Config is fixed at construction.
type Config struct {
	ItemID       uint64
	Owner        chain.Address
	MinIncrement chain.Wei
	// Duration after construction at which anyone may end the auction.
	// Zero means only the owner can end it.
	Duration time.Duration
}

// Snapshot is a read-only copy of the auction's public state.
type Snapshot struct {
	Book
	ItemID       uint64
	Owner        chain.Address
	MinIncrement chain.Wei
	EndTime      time.Time
	State        State
	AgreementID  uint64
}

// Engine runs one English auction with pull-payment settlement. Every bid
// is escrowed under Address(); nothing is paid out until Withdraw.
type Engine struct {
	mu             sync.Mutex
	addr           chain.Address
	cfg            Config
	endTime        time.Time
	state          State
	book           Book
	deposits       map[chain.Address]chain.Wei
	ownerWithdrawn bool
	agreementID    uint64

	ledger  ledger.Rewarder
	bank    chain.Payments
	rentals rental.Issuer
	env     host.Env
}

func New(cfg Config, l ledger.Rewarder, bank chain.Payments, rentals rental.Issuer, opts ...host.Option) *Engine {
	e := &Engine{
		addr:     chain.ContractAddress("auction"),
		cfg:      cfg,
		deposits: make(map[chain.Address]chain.Wei),
		ledger:   l,
		bank:     bank,
		rentals:  rentals,
		env:      host.New("auction", opts...),
	}
	if cfg.Duration > 0 {
		e.endTime = e.env.Clock.Now().Add(cfg.Duration)
	}
	e.env.Log = e.env.Log.With().Uint64("item", cfg.ItemID).Logger()
	return e
}

func (e *Engine) Address() chain.Address { return e.addr }

func (e *Engine) ref() string { return strconv.FormatUint(e.cfg.ItemID, 10) }

// expiredLocked reports whether the configured end time has passed.
func (e *Engine) expiredLocked() bool {
	return !e.endTime.IsZero() && !e.env.Clock.Now().Before(e.endTime)
}

// PlaceBid adds value to the caller's escrowed deposit and re-prices the
// book. The bid is checked, the value is pulled without holding the lock,
// and the bid is checked again before it is committed: a receiver on the
// escrow may have moved the auction on meanwhile. A bid that no longer
// stands has its value reversed.
func (e *Engine) PlaceBid(ctx context.Context, caller chain.Address, value chain.Wei) error {
	if !e.ledger.IsMember(caller) {
		e.env.Log.Info().Str("bidder", caller.String()).Msg("bid from non-member rejected")
		return fmt.Errorf("place bid: %w", ErrNotAMember)
	}

	e.mu.Lock()
	_, err := e.checkBidLocked(caller, value)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("place bid: %w", err)
	}

	if err := e.bank.Transfer(ctx, caller, e.addr, value); err != nil {
		return fmt.Errorf("place bid: %w", err)
	}

	e.mu.Lock()
	total, err := e.checkBidLocked(caller, value)
	if err != nil {
		e.mu.Unlock()
		if rerr := e.bank.Reverse(caller, e.addr, value); rerr != nil {
			e.env.Log.Error().Err(rerr).Str("bidder", caller.String()).Msg("reverse rejected bid")
		}
		return fmt.Errorf("place bid: %w", err)
	}
	e.deposits[caller] = total
	e.book = Rebid(e.book, caller, total, e.cfg.MinIncrement)
	book := e.book
	e.mu.Unlock()

	e.env.Log.Debug().
		Str("bidder", caller.String()).
		Uint64("total", uint64(total)).
		Uint64("highest", uint64(book.HighestBid)).
		Uint64("binding", uint64(book.HighestBindingBid)).
		Msg("bid received")
	e.env.Emit(journal.Event{
		Kind:    journal.BidReceived,
		Source:  e.addr,
		Actor:   caller,
		Subject: book.HighestBidder,
		Ref:     e.ref(),
		Amount:  book.HighestBid,
		Detail:  "binding=" + strconv.FormatUint(uint64(book.HighestBindingBid), 10),
	})
	return nil
}

// checkBidLocked validates a bid of value by caller and returns the
// caller's deposit after it.
func (e *Engine) checkBidLocked(caller chain.Address, value chain.Wei) (chain.Wei, error) {
	if e.state != Open || e.expiredLocked() {
		return 0, ErrAuctionNotOpen
	}
	if caller == e.cfg.Owner {
		return 0, ErrOwnerCannotBid
	}
	if value == 0 {
		return 0, ErrZeroBid
	}
	total, err := e.deposits[caller].Add(value)
	if err != nil {
		return 0, err
	}
	if total <= e.book.HighestBindingBid {
		return 0, fmt.Errorf("bid of %s (binding %s): %w", total, e.book.HighestBindingBid, ErrBidTooLow)
	}
	return total, nil
}

// EndAuction closes bidding. The owner may end it at any time; anyone else
// only once it has expired. With a winner, a rental agreement binding owner
// and winner is created and the winner earns settlement points. If either
// outside call fails the auction stays Open.
func (e *Engine) EndAuction(ctx context.Context, caller chain.Address) error {
	e.mu.Lock()
	if e.state != Open {
		e.mu.Unlock()
		return fmt.Errorf("end auction: %w", ErrAuctionNotOpen)
	}
	if caller != e.cfg.Owner && !e.expiredLocked() {
		e.mu.Unlock()
		return fmt.Errorf("end auction: %w", ErrNotOwner)
	}
	winner := e.book.HighestBidder
	points := e.ledger.Schedule().Settlement
	if !winner.IsZero() {
		if err := e.ledger.CanAward(e.addr, winner); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("end auction: %w", err)
		}
	}
	e.state = Ended
	book := e.book
	e.mu.Unlock()

	var agreementID uint64
	if !winner.IsZero() {
		id, err := e.rentals.Create(ctx, e.addr, e.cfg.Owner, winner)
		if err != nil {
			e.mu.Lock()
			e.state = Open
			e.mu.Unlock()
			return fmt.Errorf("end auction: %w", err)
		}
		agreementID = id

		e.mu.Lock()
		e.agreementID = id
		e.mu.Unlock()

		// CanAward passed above and the ledger only changes under the
		// substrate's serialization, so this cannot fail short of a bug.
		if err := e.ledger.AwardPoints(ctx, e.addr, winner, points); err != nil {
			e.env.Log.Error().Err(err).Str("winner", winner.String()).Msg("settlement award failed after agreement creation")
			return fmt.Errorf("end auction: %w", err)
		}
	}

	e.env.Log.Debug().
		Str("winner", winner.String()).
		Uint64("binding", uint64(book.HighestBindingBid)).
		Uint64("agreement", agreementID).
		Msg("auction ended")
	e.env.Emit(journal.Event{
		Kind:    journal.AuctionEnded,
		Source:  e.addr,
		Actor:   caller,
		Subject: winner,
		Ref:     e.ref(),
		Amount:  book.HighestBindingBid,
		Detail:  "agreement=" + strconv.FormatUint(agreementID, 10),
	})
	return nil
}

// Cancel aborts an open auction. Every bidder may then withdraw their full
// deposit and the owner receives nothing.
func (e *Engine) Cancel(ctx context.Context, caller chain.Address) error {
	e.mu.Lock()
	if caller != e.cfg.Owner {
		e.mu.Unlock()
		return fmt.Errorf("cancel auction: %w", ErrNotOwner)
	}
	if e.state != Open {
		e.mu.Unlock()
		return fmt.Errorf("cancel auction: %w", ErrAuctionNotOpen)
	}
	e.state = Cancelled
	e.mu.Unlock()

	e.env.Log.Debug().Msg("auction cancelled")
	e.env.Emit(journal.Event{
		Kind:   journal.AuctionCancelled,
		Source: e.addr,
		Actor:  caller,
		Ref:    e.ref(),
	})
	return nil
}

// Withdraw pays the caller what the settled auction owes them:
//   - owner: the highest binding bid, once
//   - winner: their deposit minus the highest binding bid
//   - everyone else, or anyone after Cancel: their full deposit
//
// The entitlement is zeroed before the transfer, so a re-entrant Withdraw
// from the caller's receiver finds nothing; a failed transfer restores it.
func (e *Engine) Withdraw(ctx context.Context, caller chain.Address) error {
	e.mu.Lock()
	if e.state == Open {
		e.mu.Unlock()
		return fmt.Errorf("withdraw: %w", ErrAuctionNotEnded)
	}

	var (
		amount    chain.Wei
		fromOwner bool
	)
	switch {
	case e.state == Cancelled:
		amount = e.deposits[caller]
	case caller == e.cfg.Owner && !e.ownerWithdrawn:
		amount = e.book.HighestBindingBid
		fromOwner = true
	case caller == e.book.HighestBidder:
		amount = e.deposits[caller] - e.book.HighestBindingBid
	default:
		amount = e.deposits[caller]
	}
	if amount == 0 {
		e.mu.Unlock()
		return fmt.Errorf("withdraw for %s: %w", caller, ErrNothingToWithdraw)
	}

	if fromOwner {
		e.ownerWithdrawn = true
	} else {
		e.deposits[caller] -= amount
	}
	e.mu.Unlock()

	if err := e.bank.Transfer(ctx, e.addr, caller, amount); err != nil {
		e.mu.Lock()
		if fromOwner {
			e.ownerWithdrawn = false
		} else {
			e.deposits[caller] += amount
		}
		e.mu.Unlock()
		return fmt.Errorf("withdraw for %s: %w", caller, err)
	}

	e.env.Log.Debug().Str("recipient", caller.String()).Uint64("amount", uint64(amount)).Msg("withdrawal done")
	e.env.Emit(journal.Event{
		Kind:   journal.WithdrawalCompleted,
		Source: e.addr,
		Actor:  caller,
		Ref:    e.ref(),
		Amount: amount,
	})
	return nil
}

func (e *Engine) HighestBid() chain.Wei {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.HighestBid
}

func (e *Engine) HighestBindingBid() chain.Wei {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.HighestBindingBid
}

func (e *Engine) HighestBidder() chain.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.HighestBidder
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// DepositOf is what the auction still holds for who.
func (e *Engine) DepositOf(who chain.Address) chain.Wei {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deposits[who]
}

func (e *Engine) OwnerHasWithdrawn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ownerWithdrawn
}

// AgreementID is the rental agreement created at settlement, 0 if none.
func (e *Engine) AgreementID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agreementID
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Book:         e.book,
		ItemID:       e.cfg.ItemID,
		Owner:        e.cfg.Owner,
		MinIncrement: e.cfg.MinIncrement,
		EndTime:      e.endTime,
		State:        e.state,
		AgreementID:  e.agreementID,
	}
}
