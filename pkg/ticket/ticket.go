// Package ticket issues event tickets as items of an asset collection, sold
// by tier at a fixed price with a fixed supply.
package ticket

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rustyeddy/commons/pkg/asset"
	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
)

var (
	ErrNotAMember          = chain.Reject(chain.ErrUnauthorized, "Not authorized to buy a ticket. Sign up on Profile")
	ErrInvalidTier         = chain.Reject(chain.ErrNotFound, "invalid ticket tier")
	ErrSupplyExhausted     = chain.Reject(chain.ErrInvalidState, "tier sold out")
	ErrInsufficientPayment = chain.Reject(chain.ErrInsufficientValue, "payment below ticket price")
	ErrNoTiers             = chain.Reject(chain.ErrInvalidState, "event needs at least one tier")
	ErrNoOrganizer         = chain.Reject(chain.ErrInvalidState, "event needs an organizer")
)

type Tier struct {
	Name   string
	Supply uint64
	Price  chain.Wei
	Minted uint64
}

type Config struct {
	Name      string
	Venue     string
	Organizer chain.Address
	Tiers     []Tier
}

// Event sells tickets. Tiers are fixed at construction.
type Event struct {
	mu        sync.Mutex
	addr      chain.Address
	name      string
	venue     string
	organizer chain.Address
	tiers     []Tier
	tierOf    map[uint64]int
	coll      *asset.Collection
	members   ledger.Members
	bank      chain.Payments
	env       host.Env
}

func New(cfg Config, members ledger.Members, bank chain.Payments, opts ...host.Option) (*Event, error) {
	if len(cfg.Tiers) == 0 {
		return nil, ErrNoTiers
	}
	if cfg.Organizer.IsZero() {
		return nil, ErrNoOrganizer
	}

	tiers := make([]Tier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)
	for i := range tiers {
		tiers[i].Minted = 0
	}

	addr := chain.ContractAddress("ticket")
	return &Event{
		addr:      addr,
		name:      cfg.Name,
		venue:     cfg.Venue,
		organizer: cfg.Organizer,
		tiers:     tiers,
		tierOf:    make(map[uint64]int),
		coll:      asset.NewCollection(cfg.Name, "TIX", addr, opts...),
		members:   members,
		bank:      bank,
		env:       host.New("ticket", opts...),
	}, nil
}

func (e *Event) Address() chain.Address        { return e.addr }
func (e *Event) Name() string                  { return e.name }
func (e *Event) Venue() string                 { return e.venue }
func (e *Event) Organizer() chain.Address      { return e.organizer }
func (e *Event) Collection() *asset.Collection { return e.coll }

// Mint sells the caller one ticket of the given tier. The price goes to the
// organizer and any excess payment is returned.
func (e *Event) Mint(ctx context.Context, caller chain.Address, tier int, payment chain.Wei) (uint64, error) {
	if !e.members.IsMember(caller) {
		return 0, ErrNotAMember
	}

	e.mu.Lock()
	if tier < 0 || tier >= len(e.tiers) {
		e.mu.Unlock()
		return 0, ErrInvalidTier
	}
	t := &e.tiers[tier]
	if t.Minted >= t.Supply {
		e.mu.Unlock()
		return 0, ErrSupplyExhausted
	}
	if payment < t.Price {
		e.mu.Unlock()
		return 0, ErrInsufficientPayment
	}
	price, name := t.Price, t.Name
	t.Minted++
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		e.tiers[tier].Minted--
		e.mu.Unlock()
	}

	if err := e.bank.Transfer(ctx, caller, e.addr, payment); err != nil {
		release()
		return 0, fmt.Errorf("mint %s ticket: %w", name, err)
	}

	var undo []func() error
	undo = append(undo, func() error { return e.bank.Reverse(caller, e.addr, payment) })

	itemID, err := func() (uint64, error) {
		if err := e.bank.Transfer(ctx, e.addr, e.organizer, price); err != nil {
			return 0, fmt.Errorf("pay organizer: %w", err)
		}
		undo = append(undo, func() error { return e.bank.Reverse(e.addr, e.organizer, price) })

		if err := e.bank.Transfer(ctx, e.addr, caller, payment-price); err != nil {
			return 0, fmt.Errorf("refund excess: %w", err)
		}
		undo = append(undo, func() error { return e.bank.Reverse(e.addr, caller, payment-price) })
		return e.coll.Mint(ctx, e.addr, caller)
	}()
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				e.env.Log.Error().Err(uerr).Str("tier", name).Msg("ticket unwind incomplete")
			}
		}
		release()
		return 0, fmt.Errorf("mint %s ticket: %w", name, err)
	}

	e.mu.Lock()
	e.tierOf[itemID] = tier
	e.mu.Unlock()

	e.env.Emit(journal.Event{
		Kind:   journal.TicketMinted,
		Source: e.addr,
		Actor:  caller,
		Ref:    e.name + "/" + strconv.FormatUint(itemID, 10),
		Amount: price,
		Detail: name,
	})
	return itemID, nil
}

// Tiers returns a copy of the tier table with current mint counts.
func (e *Event) Tiers() []Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}

// TicketTier reports which tier itemID was sold from.
func (e *Event) TicketTier(itemID uint64) (Tier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.tierOf[itemID]
	if !ok {
		return Tier{}, asset.ErrTokenNotFound
	}
	return e.tiers[i], nil
}
