// Package asset holds the non-fungible item registries the marketplace
// trades over. Collection is the in-memory ERC-721 style implementation used
// by tickets, the CLI demo and tests.
package asset

import (
	"context"
	"sync"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
)

var (
	ErrTokenNotFound = chain.Reject(chain.ErrNotFound, "token does not exist")
	ErrNotAuthorized = chain.Reject(chain.ErrUnauthorized, "caller is not owner nor approved")
	ErrWrongOwner    = chain.Reject(chain.ErrInvalidState, "transfer from incorrect owner")
	ErrZeroAddress   = chain.Reject(chain.ErrInvalidState, "zero address")
	ErrNotMinter     = chain.Reject(chain.ErrUnauthorized, "caller may not mint")
)

// Registry is an external item registry as seen by the marketplace.
type Registry interface {
	OwnerOf(itemID uint64) (chain.Address, error)
	GetApproved(itemID uint64) (chain.Address, error)
	IsApprovedForAll(owner, operator chain.Address) bool
	Approve(ctx context.Context, caller, operator chain.Address, itemID uint64) error
	TransferFrom(ctx context.Context, caller, from, to chain.Address, itemID uint64) error
}

type Collection struct {
	mu        sync.Mutex
	addr      chain.Address
	name      string
	symbol    string
	minter    chain.Address
	owners    map[uint64]chain.Address
	approvals map[uint64]chain.Address
	operators map[chain.Address]map[chain.Address]bool
	balances  map[chain.Address]uint64
	lastID    uint64
	env       host.Env
}

var _ Registry = (*Collection)(nil)

// NewCollection creates an empty collection. Only minter may mint; a zero
// minter leaves minting open to anyone.
func NewCollection(name, symbol string, minter chain.Address, opts ...host.Option) *Collection {
	return &Collection{
		addr:      chain.ContractAddress("asset"),
		name:      name,
		symbol:    symbol,
		minter:    minter,
		owners:    make(map[uint64]chain.Address),
		approvals: make(map[uint64]chain.Address),
		operators: make(map[chain.Address]map[chain.Address]bool),
		balances:  make(map[chain.Address]uint64),
		env:       host.New("asset", opts...),
	}
}

func (c *Collection) Address() chain.Address { return c.addr }
func (c *Collection) Name() string           { return c.name }
func (c *Collection) Symbol() string         { return c.symbol }

// Mint creates the next item for to. Ids start at 1.
func (c *Collection) Mint(ctx context.Context, caller, to chain.Address) (uint64, error) {
	if !c.minter.IsZero() && caller != c.minter {
		return 0, ErrNotMinter
	}
	if to.IsZero() {
		return 0, ErrZeroAddress
	}

	c.mu.Lock()
	c.lastID++
	id := c.lastID
	c.owners[id] = to
	c.balances[to]++
	c.mu.Unlock()

	c.env.Log.Debug().Str("collection", c.name).Uint64("item", id).Str("to", to.String()).Msg("minted")
	return id, nil
}

func (c *Collection) OwnerOf(itemID uint64) (chain.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[itemID]
	if !ok {
		return chain.ZeroAddress, ErrTokenNotFound
	}
	return owner, nil
}

func (c *Collection) BalanceOf(who chain.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[who]
}

func (c *Collection) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// Approve lets operator transfer itemID. The owner or one of its operators
// may call it; approving the zero address clears the approval.
func (c *Collection) Approve(ctx context.Context, caller, operator chain.Address, itemID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[itemID]
	if !ok {
		return ErrTokenNotFound
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotAuthorized
	}
	if operator.IsZero() {
		delete(c.approvals, itemID)
		return nil
	}
	c.approvals[itemID] = operator
	return nil
}

func (c *Collection) GetApproved(itemID uint64) (chain.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[itemID]; !ok {
		return chain.ZeroAddress, ErrTokenNotFound
	}
	return c.approvals[itemID], nil
}

func (c *Collection) SetApprovalForAll(ctx context.Context, caller, operator chain.Address, approved bool) error {
	if operator.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ops := c.operators[caller]
	if ops == nil {
		ops = make(map[chain.Address]bool)
		c.operators[caller] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
	return nil
}

func (c *Collection) IsApprovedForAll(owner, operator chain.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operators[owner][operator]
}

// TransferFrom moves itemID from -> to. The caller must be the owner, the
// approved address or an operator of the owner. The approval is cleared.
func (c *Collection) TransferFrom(ctx context.Context, caller, from, to chain.Address, itemID uint64) error {
	if to.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[itemID]
	if !ok {
		return ErrTokenNotFound
	}
	if owner != from {
		return ErrWrongOwner
	}
	if caller != owner && c.approvals[itemID] != caller && !c.operators[owner][caller] {
		return ErrNotAuthorized
	}

	delete(c.approvals, itemID)
	c.balances[from]--
	c.balances[to]++
	c.owners[itemID] = to
	return nil
}
