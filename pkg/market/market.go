// Package market is the marketplace escrow: members list items held in an
// external registry and other members buy them for native value.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/commons/pkg/asset"
	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
)

var (
	ErrNotAMember          = chain.Reject(chain.ErrUnauthorized, "Not authorized to trade. Sign up on Profile")
	ErrZeroPrice           = chain.Reject(chain.ErrInvalidState, "price must be above zero")
	ErrNotOwner            = chain.Reject(chain.ErrUnauthorized, "caller does not own the item")
	ErrNotApproved         = chain.Reject(chain.ErrUnauthorized, "marketplace is not approved for the item")
	ErrNotListed           = chain.Reject(chain.ErrNotFound, "item is not listed")
	ErrNotSeller           = chain.Reject(chain.ErrUnauthorized, "only the seller may change the listing")
	ErrSellerCannotBuy     = chain.Reject(chain.ErrInvalidState, "seller cannot buy their own item")
	ErrInsufficientPayment = chain.Reject(chain.ErrInsufficientValue, "payment below listing price")
	ErrUnknownCollection   = chain.Reject(chain.ErrNotFound, "unknown collection")
	ErrDuplicateCollection = chain.Reject(chain.ErrInvalidState, "collection already added")
	ErrPurchaseInProgress  = chain.Reject(chain.ErrInvalidState, "purchase already in progress")
)

// Key identifies an item across collections.
type Key struct {
	Collection string
	ItemID     uint64
}

func (k Key) String() string {
	return k.Collection + "/" + strconv.FormatUint(k.ItemID, 10)
}

type Listing struct {
	Key
	Seller   chain.Address
	Price    chain.Wei
	Active   bool
	ListedAt time.Time
}

// Escrow holds buyer payments while an item changes hands.
type Escrow struct {
	mu          sync.Mutex
	addr        chain.Address
	collections map[string]asset.Registry
	listings    map[Key]*Listing
	buying      bool
	members     ledger.Members
	bank        chain.Payments
	env         host.Env
}

func New(members ledger.Members, bank chain.Payments, opts ...host.Option) *Escrow {
	return &Escrow{
		addr:        chain.ContractAddress("market"),
		collections: make(map[string]asset.Registry),
		listings:    make(map[Key]*Listing),
		members:     members,
		bank:        bank,
		env:         host.New("market", opts...),
	}
}

func (e *Escrow) Address() chain.Address { return e.addr }

// AddCollection makes registry addressable under ref.
func (e *Escrow) AddCollection(ref string, registry asset.Registry) error {
	if ref == "" || registry == nil {
		return fmt.Errorf("add collection %q: %w", ref, ErrUnknownCollection)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collections[ref]; ok {
		return fmt.Errorf("add collection %q: %w", ref, ErrDuplicateCollection)
	}
	e.collections[ref] = registry
	return nil
}

func (e *Escrow) registry(ref string) (asset.Registry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.collections[ref]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return reg, nil
}

// approved reports whether the escrow may move itemID out of owner's hands.
func (e *Escrow) approved(reg asset.Registry, owner chain.Address, itemID uint64) (bool, error) {
	if reg.IsApprovedForAll(owner, e.addr) {
		return true, nil
	}
	op, err := reg.GetApproved(itemID)
	if err != nil {
		return false, err
	}
	return op == e.addr, nil
}

// ListItem creates or overwrites the caller's listing for an item it owns
// and has approved the escrow for.
func (e *Escrow) ListItem(ctx context.Context, caller chain.Address, ref string, itemID uint64, price chain.Wei) error {
	if !e.members.IsMember(caller) {
		return ErrNotAMember
	}
	if price == 0 {
		return ErrZeroPrice
	}
	reg, err := e.registry(ref)
	if err != nil {
		return fmt.Errorf("list %s/%d: %w", ref, itemID, err)
	}

	owner, err := reg.OwnerOf(itemID)
	if err != nil {
		return fmt.Errorf("list %s/%d: %w", ref, itemID, err)
	}
	if owner != caller {
		return ErrNotOwner
	}
	ok, err := e.approved(reg, caller, itemID)
	if err != nil {
		return fmt.Errorf("list %s/%d: %w", ref, itemID, err)
	}
	if !ok {
		return ErrNotApproved
	}

	key := Key{Collection: ref, ItemID: itemID}
	now := e.env.Clock.Now()

	e.mu.Lock()
	e.listings[key] = &Listing{Key: key, Seller: caller, Price: price, Active: true, ListedAt: now}
	e.mu.Unlock()

	e.env.Emit(journal.Event{
		Kind:   journal.ItemListed,
		Source: e.addr,
		Actor:  caller,
		Ref:    key.String(),
		Amount: price,
	})
	return nil
}

// active returns the live listing for key. The caller holds e.mu.
func (e *Escrow) active(key Key) (*Listing, error) {
	l, ok := e.listings[key]
	if !ok || !l.Active {
		return nil, ErrNotListed
	}
	return l, nil
}

func (e *Escrow) UnlistItem(ctx context.Context, caller chain.Address, ref string, itemID uint64) error {
	key := Key{Collection: ref, ItemID: itemID}

	e.mu.Lock()
	l, err := e.active(key)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if l.Seller != caller {
		e.mu.Unlock()
		return ErrNotSeller
	}
	l.Active = false
	e.mu.Unlock()

	e.env.Emit(journal.Event{
		Kind:   journal.ItemUnlisted,
		Source: e.addr,
		Actor:  caller,
		Ref:    key.String(),
	})
	return nil
}

func (e *Escrow) UpdateListing(ctx context.Context, caller chain.Address, ref string, itemID uint64, price chain.Wei) error {
	key := Key{Collection: ref, ItemID: itemID}

	e.mu.Lock()
	l, err := e.active(key)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if l.Seller != caller {
		e.mu.Unlock()
		return ErrNotSeller
	}
	if price == 0 {
		e.mu.Unlock()
		return ErrZeroPrice
	}
	old := l.Price
	l.Price = price
	e.mu.Unlock()

	e.env.Emit(journal.Event{
		Kind:   journal.ItemUpdated,
		Source: e.addr,
		Actor:  caller,
		Ref:    key.String(),
		Amount: price,
		Detail: "was " + old.String(),
	})
	return nil
}

// Buy settles a listing. The listing is deactivated first, then the payment
// is pulled into escrow, the item moves seller -> buyer, the seller is paid
// and any excess is refunded. A failing step unwinds the earlier ones and
// puts the original listing back.
func (e *Escrow) Buy(ctx context.Context, caller chain.Address, ref string, itemID uint64, payment chain.Wei) error {
	if !e.members.IsMember(caller) {
		return ErrNotAMember
	}
	reg, err := e.registry(ref)
	if err != nil {
		return fmt.Errorf("buy %s/%d: %w", ref, itemID, err)
	}
	key := Key{Collection: ref, ItemID: itemID}

	e.mu.Lock()
	if e.buying {
		e.mu.Unlock()
		return ErrPurchaseInProgress
	}
	l, err := e.active(key)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if l.Seller == caller {
		e.mu.Unlock()
		return ErrSellerCannotBuy
	}
	if payment < l.Price {
		e.mu.Unlock()
		return ErrInsufficientPayment
	}
	seller, price := l.Seller, l.Price
	saved := *l
	l.Active = false
	e.buying = true
	e.mu.Unlock()

	s := settlement{
		escrow: e,
		reg:    reg,
		key:    key,
		buyer:  caller,
		seller: seller,
		price:  price,
		paid:   payment,
	}
	err = s.run(ctx)

	e.mu.Lock()
	e.buying = false
	if err != nil {
		// A receiver may have relisted the item mid-settlement; the
		// unwound item is the seller's again, and so is the listing.
		e.listings[key] = &saved
	}
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("buy %s: %w", key, err)
	}

	e.env.Emit(journal.Event{
		Kind:    journal.ItemPurchased,
		Source:  e.addr,
		Actor:   caller,
		Subject: seller,
		Ref:     key.String(),
		Amount:  price,
		Detail:  "refund " + (payment - price).String(),
	})
	return nil
}

// settlement runs the interactions of one purchase and knows how to undo
// each of them.
type settlement struct {
	escrow        *Escrow
	reg           asset.Registry
	key           Key
	buyer, seller chain.Address
	price, paid   chain.Wei
	undo          []func() error
}

func (s *settlement) run(ctx context.Context) error {
	e := s.escrow

	// The per-item approval is cleared by the transfer; remember it so an
	// unwind can restore it.
	op, err := s.reg.GetApproved(s.key.ItemID)
	if err != nil {
		return err
	}
	perItem := op == e.addr

	steps := []func() error{
		func() error {
			if err := e.bank.Transfer(ctx, s.buyer, e.addr, s.paid); err != nil {
				return fmt.Errorf("pull payment: %w", err)
			}
			s.undo = append(s.undo, func() error { return e.bank.Reverse(s.buyer, e.addr, s.paid) })
			return nil
		},
		func() error {
			if err := s.reg.TransferFrom(ctx, e.addr, s.seller, s.buyer, s.key.ItemID); err != nil {
				return fmt.Errorf("transfer item: %w", err)
			}
			s.undo = append(s.undo, func() error {
				if err := s.reg.TransferFrom(ctx, s.buyer, s.buyer, s.seller, s.key.ItemID); err != nil {
					return err
				}
				if perItem {
					return s.reg.Approve(ctx, s.seller, e.addr, s.key.ItemID)
				}
				return nil
			})
			return nil
		},
		func() error {
			if err := e.bank.Transfer(ctx, e.addr, s.seller, s.price); err != nil {
				return fmt.Errorf("pay seller: %w", err)
			}
			s.undo = append(s.undo, func() error { return e.bank.Reverse(e.addr, s.seller, s.price) })
			return nil
		},
		func() error {
			if err := e.bank.Transfer(ctx, e.addr, s.buyer, s.paid-s.price); err != nil {
				return fmt.Errorf("refund excess: %w", err)
			}
			return nil
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			if uerr := s.unwind(); uerr != nil {
				e.env.Log.Error().Err(uerr).Str("ref", s.key.String()).Msg("purchase unwind incomplete")
				return errors.Join(err, uerr)
			}
			return err
		}
	}
	return nil
}

func (s *settlement) unwind() error {
	var errs []error
	for i := len(s.undo) - 1; i >= 0; i-- {
		if err := s.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Escrow) Listing(ref string, itemID uint64) (Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.listings[Key{Collection: ref, ItemID: itemID}]
	if !ok {
		return Listing{}, ErrNotListed
	}
	return *l, nil
}

// Listings returns the active listings ordered by collection then item.
func (e *Escrow) Listings() []Listing {
	e.mu.Lock()
	out := make([]Listing, 0, len(e.listings))
	for _, l := range e.listings {
		if l.Active {
			out = append(out, *l)
		}
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}
