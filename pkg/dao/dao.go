package dao

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
)

var (
	ErrNotAMember       = chain.Reject(chain.ErrUnauthorized, "Not authorized to vote for a proposal. Sign up on Profile")
	ErrNotAMemberCreate = chain.Reject(chain.ErrUnauthorized, "Not authorized to create a proposal. Sign up on Profile")
	ErrNotOwner         = chain.Reject(chain.ErrUnauthorized, "Not authorized")
	ErrInvalidProposal  = chain.Reject(chain.ErrNotFound, "Invalid proposal")
	ErrAlreadyVoted     = chain.Reject(chain.ErrInvalidState, "Already voted")
	ErrProposalNotOpen  = chain.Reject(chain.ErrInvalidState, "Proposal is not open")
	ErrEmptyDescription = chain.Reject(chain.ErrInvalidState, "Proposal needs a description")
	ErrQuorumNotReached = chain.Reject(chain.ErrQuorumNotReached, "Quorum not reached")
	ErrQuorumReached    = chain.Reject(chain.ErrInvalidState, "Quorum reached; end the proposal instead")
)

type State int

const (
	Open State = iota
	Passed
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Passed:
		return "Passed"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

type Config struct {
	Owner  chain.Address
	Quorum uint64 // minimum votes cast before a proposal can be ended
}

type Proposal struct {
	ID           uint64
	Proposer     chain.Address
	Description  string
	VotesFor     uint64
	VotesAgainst uint64
	State        State
	CreatedAt    time.Time
}

func (p Proposal) Votes() uint64 { return p.VotesFor + p.VotesAgainst }

type proposal struct {
	Proposal
	voters map[chain.Address]bool
}

// Engine is the governance DAO. Proposals are numbered from 0.
type Engine struct {
	mu        sync.Mutex
	addr      chain.Address
	cfg       Config
	proposals []*proposal
	ledger    ledger.Rewarder
	env       host.Env
}

func New(cfg Config, l ledger.Rewarder, opts ...host.Option) *Engine {
	return &Engine{
		addr:   chain.ContractAddress("dao"),
		cfg:    cfg,
		ledger: l,
		env:    host.New("dao", opts...),
	}
}

func (e *Engine) Address() chain.Address { return e.addr }

func (e *Engine) Quorum() uint64 { return e.cfg.Quorum }

func (e *Engine) CreateProposal(ctx context.Context, caller chain.Address, description string) (uint64, error) {
	if !e.ledger.IsMember(caller) {
		return 0, fmt.Errorf("create proposal: %w", ErrNotAMemberCreate)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return 0, fmt.Errorf("create proposal: %w", ErrEmptyDescription)
	}

	e.mu.Lock()
	p := &proposal{
		Proposal: Proposal{
			ID:          uint64(len(e.proposals)),
			Proposer:    caller,
			Description: description,
			State:       Open,
			CreatedAt:   e.env.Clock.Now(),
		},
		voters: make(map[chain.Address]bool),
	}
	e.proposals = append(e.proposals, p)
	e.mu.Unlock()

	e.env.Log.Debug().Uint64("proposal", p.ID).Str("proposer", caller.String()).Msg("proposal added")
	e.env.Emit(journal.Event{
		Kind:   journal.ProposalAdded,
		Time:   p.CreatedAt,
		Source: e.addr,
		Actor:  caller,
		Ref:    strconv.FormatUint(p.ID, 10),
		Detail: description,
	})
	return p.ID, nil
}

// lookupLocked returns the proposal or ErrInvalidProposal.
func (e *Engine) lookupLocked(id uint64) (*proposal, error) {
	if id >= uint64(len(e.proposals)) {
		return nil, ErrInvalidProposal
	}
	return e.proposals[id], nil
}

// Vote records one vote per member per proposal and pays the voter the
// schedule's vote points. If the award fails the vote is taken back.
func (e *Engine) Vote(ctx context.Context, caller chain.Address, id uint64, support bool) error {
	if !e.ledger.IsMember(caller) {
		e.env.Log.Info().Str("voter", caller.String()).Msg("vote from non-member rejected")
		return fmt.Errorf("vote: %w", ErrNotAMember)
	}

	e.mu.Lock()
	p, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("vote on %d: %w", id, err)
	}
	if p.State != Open {
		e.mu.Unlock()
		return fmt.Errorf("vote on %d: %w", id, ErrProposalNotOpen)
	}
	if p.voters[caller] {
		e.mu.Unlock()
		return fmt.Errorf("vote on %d: %w", id, ErrAlreadyVoted)
	}
	p.voters[caller] = true
	if support {
		p.VotesFor++
	} else {
		p.VotesAgainst++
	}
	votesFor, votesAgainst := p.VotesFor, p.VotesAgainst
	e.mu.Unlock()

	points := e.ledger.Schedule().Vote
	if err := e.ledger.AwardPoints(ctx, e.addr, caller, points); err != nil {
		e.mu.Lock()
		delete(p.voters, caller)
		if support {
			p.VotesFor--
		} else {
			p.VotesAgainst--
		}
		e.mu.Unlock()
		return fmt.Errorf("vote on %d: %w", id, err)
	}

	e.env.Log.Debug().
		Uint64("proposal", id).
		Str("voter", caller.String()).
		Bool("support", support).
		Uint64("for", votesFor).
		Uint64("against", votesAgainst).
		Msg("voted")
	e.env.Emit(journal.Event{
		Kind:   journal.Voted,
		Source: e.addr,
		Actor:  caller,
		Ref:    strconv.FormatUint(id, 10),
		Detail: fmt.Sprintf("support=%t for=%d against=%d", support, votesFor, votesAgainst),
	})
	return nil
}

// EndProposal settles a proposal that reached quorum: Passed on a strict
// majority in favour, Failed otherwise. Owner only.
func (e *Engine) EndProposal(ctx context.Context, caller chain.Address, id uint64) error {
	e.mu.Lock()
	if caller != e.cfg.Owner {
		e.mu.Unlock()
		e.env.Log.Info().Str("caller", caller.String()).Uint64("proposal", id).Msg("end by non-owner rejected")
		return fmt.Errorf("end proposal %d: %w", id, ErrNotOwner)
	}
	p, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("end proposal %d: %w", id, err)
	}
	if p.State != Open {
		e.mu.Unlock()
		return fmt.Errorf("end proposal %d: %w", id, ErrProposalNotOpen)
	}
	if p.Votes() < e.cfg.Quorum {
		e.mu.Unlock()
		return fmt.Errorf("end proposal %d (%d of %d votes): %w", id, p.Votes(), e.cfg.Quorum, ErrQuorumNotReached)
	}
	if p.VotesFor > p.VotesAgainst {
		p.State = Passed
	} else {
		p.State = Failed
	}
	result := p.Proposal
	e.mu.Unlock()

	e.env.Log.Debug().Uint64("proposal", id).Stringer("state", result.State).Msg("proposal closed")
	e.env.Emit(journal.Event{
		Kind:   journal.ProposalClosed,
		Source: e.addr,
		Actor:  caller,
		Ref:    strconv.FormatUint(id, 10),
		Detail: fmt.Sprintf("state=%s for=%d against=%d", result.State, result.VotesFor, result.VotesAgainst),
	})
	return nil
}

// Abandon closes an open proposal that never reached quorum. Owner only.
func (e *Engine) Abandon(ctx context.Context, caller chain.Address, id uint64) error {
	e.mu.Lock()
	if caller != e.cfg.Owner {
		e.mu.Unlock()
		return fmt.Errorf("abandon proposal %d: %w", id, ErrNotOwner)
	}
	p, err := e.lookupLocked(id)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("abandon proposal %d: %w", id, err)
	}
	if p.State != Open {
		e.mu.Unlock()
		return fmt.Errorf("abandon proposal %d: %w", id, ErrProposalNotOpen)
	}
	if p.Votes() >= e.cfg.Quorum {
		e.mu.Unlock()
		return fmt.Errorf("abandon proposal %d: %w", id, ErrQuorumReached)
	}
	p.State = Closed
	votes := p.Votes()
	e.mu.Unlock()

	e.env.Log.Debug().Uint64("proposal", id).Uint64("votes", votes).Msg("quorum failed")
	e.env.Emit(journal.Event{
		Kind:   journal.QuorumFailed,
		Source: e.addr,
		Actor:  caller,
		Ref:    strconv.FormatUint(id, 10),
		Detail: fmt.Sprintf("votes=%d quorum=%d", votes, e.cfg.Quorum),
	})
	return nil
}

func (e *Engine) Proposal(id uint64) (Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.lookupLocked(id)
	if err != nil {
		return Proposal{}, fmt.Errorf("proposal %d: %w", id, err)
	}
	return p.Proposal, nil
}

func (e *Engine) Proposals() []Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		out = append(out, p.Proposal)
	}
	return out
}

func (e *Engine) HasVoted(id uint64, who chain.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.lookupLocked(id)
	return err == nil && p.voters[who]
}

func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.proposals)
}
