package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
)

var (
	ErrAlreadyRegistered = chain.Reject(chain.ErrInvalidState, "already registered")
	ErrNotAMember        = chain.Reject(chain.ErrUnauthorized, "not a member")
	ErrUntrustedCaller   = chain.Reject(chain.ErrUnauthorized, "caller is not trusted to award points")
	ErrNotOwner          = chain.Reject(chain.ErrUnauthorized, "only the ledger owner may change trusted callers")
	ErrZeroAddress       = chain.Reject(chain.ErrInvalidState, "zero address")
)

// PointSchedule is the reputation policy: how many points each earned-trust
// action is worth.
type PointSchedule struct {
	Rental     uint64 `json:"rental" yaml:"rental" toml:"rental"`
	Vote       uint64 `json:"vote" yaml:"vote" toml:"vote"`
	Settlement uint64 `json:"settlement" yaml:"settlement" toml:"settlement"`
}

func DefaultSchedule() PointSchedule {
	return PointSchedule{Rental: 3, Vote: 2, Settlement: 1}
}

type Member struct {
	Address    chain.Address
	Registered bool
	Points     uint64
	JoinedAt   time.Time
}

// Members is the read path every engine uses for authorization.
type Members interface {
	IsMember(who chain.Address) bool
}

// Rewarder is what a trusted engine needs: membership checks plus the award
// path and the schedule that prices it.
type Rewarder interface {
	Members
	AwardPoints(ctx context.Context, caller, who chain.Address, points uint64) error
	CanAward(caller, who chain.Address) error
	Schedule() PointSchedule
}

// Ledger is the membership and reputation registry shared by all engines.
type Ledger struct {
	mu       sync.Mutex
	addr     chain.Address
	owner    chain.Address
	schedule PointSchedule
	members  map[chain.Address]*Member
	trusted  map[chain.Address]bool
	env      host.Env
}

func New(owner chain.Address, schedule PointSchedule, opts ...host.Option) *Ledger {
	return &Ledger{
		addr:     chain.ContractAddress("ledger"),
		owner:    owner,
		schedule: schedule,
		members:  make(map[chain.Address]*Member),
		trusted:  make(map[chain.Address]bool),
		env:      host.New("ledger", opts...),
	}
}

func (l *Ledger) Address() chain.Address { return l.addr }

func (l *Ledger) Owner() chain.Address { return l.owner }

func (l *Ledger) Schedule() PointSchedule { return l.schedule }

// Register creates a zero-point record for who. A second registration is
// rejected and changes nothing.
func (l *Ledger) Register(ctx context.Context, who chain.Address) error {
	if who.IsZero() {
		return fmt.Errorf("register: %w", ErrZeroAddress)
	}

	l.mu.Lock()
	if _, ok := l.members[who]; ok {
		l.mu.Unlock()
		l.env.Log.Info().Str("member", who.String()).Msg("duplicate registration rejected")
		return fmt.Errorf("register %s: %w", who, ErrAlreadyRegistered)
	}
	now := l.env.Clock.Now()
	l.members[who] = &Member{Address: who, Registered: true, JoinedAt: now}
	l.mu.Unlock()

	l.env.Log.Debug().Str("member", who.String()).Msg("member registered")
	l.env.Emit(journal.Event{
		Kind:   journal.MemberRegistered,
		Time:   now,
		Source: l.addr,
		Actor:  who,
	})
	return nil
}

func (l *Ledger) IsMember(who chain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[who]
	return ok && m.Registered
}

// PointsOf returns who's reputation balance; unregistered principals have 0.
func (l *Ledger) PointsOf(who chain.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.members[who]; ok {
		return m.Points
	}
	return 0
}

func (l *Ledger) Member(who chain.Address) (Member, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.members[who]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}

// CanAward reports the error AwardPoints would fail with, without awarding.
// Engines that make more than one outside call check it before committing.
func (l *Ledger) CanAward(caller, who chain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.trusted[caller] {
		return fmt.Errorf("award points: %w", ErrUntrustedCaller)
	}
	if _, ok := l.members[who]; !ok {
		return fmt.Errorf("award points to %s: %w", who, ErrNotAMember)
	}
	return nil
}

// AwardPoints credits who. Only callers on the trusted list may award, and
// points only ever go up.
func (l *Ledger) AwardPoints(ctx context.Context, caller, who chain.Address, points uint64) error {
	l.mu.Lock()
	if !l.trusted[caller] {
		l.mu.Unlock()
		l.env.Log.Info().Str("caller", caller.String()).Msg("untrusted award rejected")
		return fmt.Errorf("award points: %w", ErrUntrustedCaller)
	}
	m, ok := l.members[who]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("award points to %s: %w", who, ErrNotAMember)
	}
	if m.Points+points < m.Points {
		l.mu.Unlock()
		return fmt.Errorf("award points to %s: %w", who, chain.ErrOverflow)
	}
	if points == 0 {
		l.mu.Unlock()
		return nil
	}
	m.Points += points
	total := m.Points
	l.mu.Unlock()

	l.env.Log.Debug().Str("member", who.String()).Uint64("points", points).Uint64("total", total).Msg("points awarded")
	l.env.Emit(journal.Event{
		Kind:    journal.PointsAwarded,
		Source:  l.addr,
		Actor:   caller,
		Subject: who,
		Ref:     strconv.FormatUint(points, 10),
		Detail:  "total=" + strconv.FormatUint(total, 10),
	})
	return nil
}

// Trust adds engine to the capability list for AwardPoints.
func (l *Ledger) Trust(ctx context.Context, caller, engine chain.Address) error {
	return l.setTrusted(caller, engine, true)
}

// Revoke removes engine from the capability list.
func (l *Ledger) Revoke(ctx context.Context, caller, engine chain.Address) error {
	return l.setTrusted(caller, engine, false)
}

func (l *Ledger) setTrusted(caller, engine chain.Address, trusted bool) error {
	if engine.IsZero() {
		return fmt.Errorf("set trusted: %w", ErrZeroAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.owner {
		return fmt.Errorf("set trusted: %w", ErrNotOwner)
	}
	if trusted {
		l.trusted[engine] = true
	} else {
		delete(l.trusted, engine)
	}
	l.env.Log.Debug().Str("engine", engine.String()).Bool("trusted", trusted).Msg("trust changed")
	return nil
}

func (l *Ledger) IsTrusted(engine chain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trusted[engine]
}
