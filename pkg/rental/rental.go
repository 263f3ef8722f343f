package rental

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
)

var (
	ErrInvalidAgreement = chain.Reject(chain.ErrNotFound, "invalid agreement")
	ErrNotRenter        = chain.Reject(chain.ErrUnauthorized, "only the renter may complete the agreement")
	ErrAlreadyCompleted = chain.Reject(chain.ErrInvalidState, "agreement already completed")
	ErrNotIssuer        = chain.Reject(chain.ErrUnauthorized, "caller may not create agreements")
	ErrNotAdmin         = chain.Reject(chain.ErrUnauthorized, "only the registry admin may authorize issuers")
	ErrZeroAddress      = chain.Reject(chain.ErrInvalidState, "agreement party is the zero address")
)

type State int

const (
	Active State = iota
	Completed
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Completed:
		return "Completed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Agreement binds an item owner to the renter who won it at auction. The
// parties never change after creation.
type Agreement struct {
	ID          uint64
	Owner       chain.Address
	Renter      chain.Address
	State       State
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Issuer creates agreements. The auction engine holds one.
type Issuer interface {
	Create(ctx context.Context, caller, owner, renter chain.Address) (uint64, error)
}

type Registry struct {
	mu         sync.Mutex
	addr       chain.Address
	admin      chain.Address
	issuers    map[chain.Address]bool
	agreements map[uint64]*Agreement
	lastID     uint64
	ledger     ledger.Rewarder
	env        host.Env
}

func New(admin chain.Address, l ledger.Rewarder, opts ...host.Option) *Registry {
	return &Registry{
		addr:       chain.ContractAddress("rental"),
		admin:      admin,
		issuers:    make(map[chain.Address]bool),
		agreements: make(map[uint64]*Agreement),
		ledger:     l,
		env:        host.New("rental", opts...),
	}
}

func (r *Registry) Address() chain.Address { return r.addr }

// Authorize lets issuer create agreements.
func (r *Registry) Authorize(ctx context.Context, caller, issuer chain.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.admin {
		return fmt.Errorf("authorize issuer: %w", ErrNotAdmin)
	}
	if issuer.IsZero() {
		return fmt.Errorf("authorize issuer: %w", ErrZeroAddress)
	}
	r.issuers[issuer] = true
	return nil
}

// Create opens an Active agreement. Ids start at 1.
func (r *Registry) Create(ctx context.Context, caller, owner, renter chain.Address) (uint64, error) {
	if owner.IsZero() || renter.IsZero() {
		return 0, fmt.Errorf("create agreement: %w", ErrZeroAddress)
	}

	r.mu.Lock()
	if !r.issuers[caller] {
		r.mu.Unlock()
		return 0, fmt.Errorf("create agreement: %w", ErrNotIssuer)
	}
	r.lastID++
	a := &Agreement{
		ID:        r.lastID,
		Owner:     owner,
		Renter:    renter,
		State:     Active,
		CreatedAt: r.env.Clock.Now(),
	}
	r.agreements[a.ID] = a
	r.mu.Unlock()

	r.env.Log.Debug().Uint64("agreement", a.ID).Str("owner", owner.String()).Str("renter", renter.String()).Msg("agreement created")
	r.env.Emit(journal.Event{
		Kind:    journal.AgreementCreated,
		Time:    a.CreatedAt,
		Source:  r.addr,
		Actor:   owner,
		Subject: renter,
		Ref:     strconv.FormatUint(a.ID, 10),
	})
	return a.ID, nil
}

func (r *Registry) Agreement(id uint64) (Agreement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agreements[id]
	if !ok {
		return Agreement{}, fmt.Errorf("agreement %d: %w", id, ErrInvalidAgreement)
	}
	return *a, nil
}

func (r *Registry) Owner(id uint64) (chain.Address, error) {
	a, err := r.Agreement(id)
	return a.Owner, err
}

func (r *Registry) Renter(id uint64) (chain.Address, error) {
	a, err := r.Agreement(id)
	return a.Renter, err
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agreements)
}

// CompleteAgreement closes an Active agreement and credits the renter with
// the schedule's rental points. If the credit fails the agreement stays
// Active.
func (r *Registry) CompleteAgreement(ctx context.Context, caller chain.Address, id uint64) error {
	r.mu.Lock()
	a, ok := r.agreements[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("complete agreement %d: %w", id, ErrInvalidAgreement)
	}
	if caller != a.Renter {
		r.mu.Unlock()
		r.env.Log.Info().Uint64("agreement", id).Str("caller", caller.String()).Msg("completion by non-renter rejected")
		return fmt.Errorf("complete agreement %d: %w", id, ErrNotRenter)
	}
	if a.State != Active {
		r.mu.Unlock()
		return fmt.Errorf("complete agreement %d: %w", id, ErrAlreadyCompleted)
	}
	now := r.env.Clock.Now()
	a.State = Completed
	a.CompletedAt = now
	renter, owner := a.Renter, a.Owner
	r.mu.Unlock()

	points := r.ledger.Schedule().Rental
	if err := r.ledger.AwardPoints(ctx, r.addr, renter, points); err != nil {
		r.mu.Lock()
		a.State = Active
		a.CompletedAt = time.Time{}
		r.mu.Unlock()
		return fmt.Errorf("complete agreement %d: %w", id, err)
	}

	r.env.Log.Debug().Uint64("agreement", id).Uint64("points", points).Msg("agreement completed")
	r.env.Emit(journal.Event{
		Kind:    journal.AgreementCompleted,
		Time:    now,
		Source:  r.addr,
		Actor:   renter,
		Subject: owner,
		Ref:     strconv.FormatUint(id, 10),
		Detail:  "points=" + strconv.FormatUint(points, 10),
	})
	return nil
}
