package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
	"github.com/rustyeddy/commons/pkg/rental"
)

const (
	owner    chain.Address = "owner"
	bidder1  chain.Address = "bidder-1"
	bidder2  chain.Address = "bidder-2"
	stranger chain.Address = "stranger"
)

var (
	tenth = chain.MustEther("0.1")
	fifth = chain.MustEther("0.2")
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	ctx     context.Context
	clock   *chain.ManualClock
	bank    *chain.Bank
	ledger  *ledger.Ledger
	rentals *rental.Registry
	auction *Engine
	mem     *journal.Memory
}

// newFixture mirrors the original deployment: item 1, increment 5 wei,
// three days, with owner and two bidders registered and funded.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:   context.Background(),
		clock: chain.NewManualClock(start),
		bank:  chain.NewBank(),
		mem:   journal.NewMemory(),
	}
	opts := []host.Option{host.WithClock(f.clock), host.WithJournal(f.mem)}

	f.ledger = ledger.New(owner, ledger.DefaultSchedule(), opts...)
	f.rentals = rental.New(owner, f.ledger, opts...)
	f.auction = New(Config{
		ItemID:       1,
		Owner:        owner,
		MinIncrement: 5,
		Duration:     72 * time.Hour,
	}, f.ledger, f.bank, f.rentals, opts...)

	require.NoError(t, f.ledger.Trust(f.ctx, owner, f.auction.Address()))
	require.NoError(t, f.ledger.Trust(f.ctx, owner, f.rentals.Address()))
	require.NoError(t, f.rentals.Authorize(f.ctx, owner, f.auction.Address()))

	for _, who := range []chain.Address{owner, bidder1, bidder2} {
		require.NoError(t, f.ledger.Register(f.ctx, who))
		require.NoError(t, f.bank.Mint(who, 10*chain.Ether))
	}
	require.NoError(t, f.bank.Mint(stranger, 10*chain.Ether))
	return f
}

// bidTwice places the 0.1 / 0.2 ether bids from the original test suite.
func (f *fixture) bidTwice(t *testing.T) {
	t.Helper()
	require.NoError(t, f.auction.PlaceBid(f.ctx, bidder1, tenth))
	assert.Equal(t, tenth, f.auction.HighestBid())
	require.NoError(t, f.auction.PlaceBid(f.ctx, bidder2, fifth))
	assert.Equal(t, fifth, f.auction.HighestBid())
}

func TestAuctionLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	assert.Equal(t, bidder2, f.auction.HighestBidder())
	assert.Equal(t, tenth+5, f.auction.HighestBindingBid())
	assert.Equal(t, tenth+fifth, f.bank.Balance(f.auction.Address()))
	assert.Len(t, f.mem.OfKind(journal.BidReceived), 2)

	require.NoError(t, f.auction.EndAuction(f.ctx, owner))
	assert.Equal(t, Ended, f.auction.State())

	ended, ok := f.mem.Last(journal.AuctionEnded)
	require.True(t, ok)
	assert.Equal(t, bidder2, ended.Subject)
	assert.Equal(t, tenth+5, ended.Amount)

	// non-winner gets the full deposit back
	before := f.bank.Balance(bidder1)
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder1))
	assert.Equal(t, before+tenth, f.bank.Balance(bidder1))

	// owner receives the binding bid, once
	before = f.bank.Balance(owner)
	require.NoError(t, f.auction.Withdraw(f.ctx, owner))
	assert.True(t, f.auction.OwnerHasWithdrawn())
	assert.Equal(t, before+tenth+5, f.bank.Balance(owner))

	// winner gets the excess over the binding bid
	before = f.bank.Balance(bidder2)
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder2))
	assert.Equal(t, before+fifth-(tenth+5), f.bank.Balance(bidder2))

	// nobody can withdraw twice
	for _, who := range []chain.Address{owner, bidder1, bidder2} {
		err := f.auction.Withdraw(f.ctx, who)
		assert.ErrorIs(t, err, ErrNothingToWithdraw, "second withdrawal by %s", who)
	}
	assert.Equal(t, chain.Wei(0), f.bank.Balance(f.auction.Address()))
	assert.Len(t, f.mem.OfKind(journal.WithdrawalCompleted), 3)

	// settlement created agreement 1 binding owner and winner
	id := f.auction.AgreementID()
	assert.Equal(t, uint64(1), id)
	renter, err := f.rentals.Renter(id)
	require.NoError(t, err)
	assert.Equal(t, bidder2, renter)
	agreementOwner, err := f.rentals.Owner(id)
	require.NoError(t, err)
	assert.Equal(t, owner, agreementOwner)

	// and earned the winner settlement points
	assert.Equal(t, uint64(1), f.ledger.PointsOf(bidder2))
	assert.Equal(t, uint64(0), f.ledger.PointsOf(bidder1))

	pointsBefore := f.ledger.PointsOf(bidder2)
	require.NoError(t, f.rentals.CompleteAgreement(f.ctx, bidder2, id))
	assert.Equal(t, pointsBefore+3, f.ledger.PointsOf(bidder2))
}

func TestPlaceBidRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.auction.PlaceBid(f.ctx, bidder1, tenth))

	tests := []struct {
		name   string
		caller chain.Address
		value  chain.Wei
		err    error
		kind   error
	}{
		{"non member", stranger, tenth, ErrNotAMember, chain.ErrUnauthorized},
		{"owner", owner, fifth, ErrOwnerCannotBid, chain.ErrUnauthorized},
		{"zero value", bidder2, 0, ErrZeroBid, chain.ErrInsufficientValue},
		{"at binding bid", bidder2, 5, ErrBidTooLow, chain.ErrInsufficientValue},
		{"more than balance", bidder2, 11 * chain.Ether, chain.ErrInsufficientFunds, chain.ErrInsufficientValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.auction.Snapshot()
			balance := f.bank.Balance(tt.caller)

			err := f.auction.PlaceBid(f.ctx, tt.caller, tt.value)
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, tt.kind)

			assert.Equal(t, before, f.auction.Snapshot())
			assert.Equal(t, balance, f.bank.Balance(tt.caller))
			assert.Equal(t, chain.Wei(0), f.auction.DepositOf(tt.caller))
		})
	}
	assert.Len(t, f.mem.OfKind(journal.BidReceived), 1)
}

func TestNonMemberBidMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	err := f.auction.PlaceBid(f.ctx, stranger, tenth)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not authorized to place a bid. Sign up on Profile")
}

func TestRunnerUpCanRaiseBindingBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	// bidder1 tops up to 0.15 total: still second, binding becomes 0.15+5
	topUp := chain.MustEther("0.05")
	require.NoError(t, f.auction.PlaceBid(f.ctx, bidder1, topUp))
	assert.Equal(t, bidder2, f.auction.HighestBidder())
	assert.Equal(t, tenth+topUp+5, f.auction.HighestBindingBid())
	assert.Equal(t, tenth+topUp, f.auction.DepositOf(bidder1))
}

func TestEndAuctionAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	err := f.auction.EndAuction(f.ctx, bidder1)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, Open, f.auction.State())

	f.clock.Advance(72 * time.Hour)

	err = f.auction.PlaceBid(f.ctx, bidder1, chain.Ether)
	assert.ErrorIs(t, err, ErrAuctionNotOpen)

	require.NoError(t, f.auction.EndAuction(f.ctx, bidder1))
	assert.Equal(t, Ended, f.auction.State())

	err = f.auction.EndAuction(f.ctx, owner)
	assert.ErrorIs(t, err, ErrAuctionNotOpen)
	assert.Equal(t, 1, f.rentals.Count())
}

func TestEndWithoutBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.auction.EndAuction(f.ctx, owner))

	assert.Equal(t, Ended, f.auction.State())
	assert.Equal(t, uint64(0), f.auction.AgreementID())
	assert.Equal(t, 0, f.rentals.Count())

	ev, ok := f.mem.Last(journal.AuctionEnded)
	require.True(t, ok)
	assert.True(t, ev.Subject.IsZero())

	assert.ErrorIs(t, f.auction.Withdraw(f.ctx, owner), ErrNothingToWithdraw)
	assert.ErrorIs(t, f.auction.PlaceBid(f.ctx, bidder1, tenth), ErrAuctionNotOpen)
}

func TestWithdrawBeforeEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	err := f.auction.Withdraw(f.ctx, bidder1)
	assert.ErrorIs(t, err, ErrAuctionNotEnded)
	assert.Equal(t, tenth, f.auction.DepositOf(bidder1))
}

func TestEndAuctionRevertsWhenAgreementFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// a rental registry that never authorized this auction
	orphan := rental.New(owner, f.ledger)
	a := New(Config{ItemID: 2, Owner: owner, MinIncrement: 5}, f.ledger, f.bank, orphan,
		host.WithClock(f.clock), host.WithJournal(f.mem))
	require.NoError(t, f.ledger.Trust(f.ctx, owner, a.Address()))
	require.NoError(t, a.PlaceBid(f.ctx, bidder1, tenth))

	err := a.EndAuction(f.ctx, owner)
	assert.ErrorIs(t, err, rental.ErrNotIssuer)
	assert.Equal(t, Open, a.State())
	assert.Equal(t, uint64(0), f.ledger.PointsOf(bidder1))
	assert.Empty(t, f.mem.OfKind(journal.AuctionEnded))
}

func TestEndAuctionRevertsWhenUntrusted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)
	require.NoError(t, f.ledger.Revoke(f.ctx, owner, f.auction.Address()))

	err := f.auction.EndAuction(f.ctx, owner)
	assert.ErrorIs(t, err, ledger.ErrUntrustedCaller)
	assert.Equal(t, Open, f.auction.State())
	assert.Equal(t, 0, f.rentals.Count())
}

func TestEscrowReceiverCanReadDuringBid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var seen []Snapshot
	f.bank.SetReceiver(f.auction.Address(), chain.ReceiverFunc(func(context.Context, chain.Address, chain.Wei) error {
		seen = append(seen, f.auction.Snapshot())
		return nil
	}))

	f.bidTwice(t)
	require.Len(t, seen, 2)
	assert.True(t, seen[0].HighestBidder.IsZero(), "the bid commits after the pull")
	assert.Equal(t, bidder1, seen[1].HighestBidder)
	assert.Equal(t, bidder2, f.auction.HighestBidder())
}

func TestBidReversedWhenAuctionEndsDuringPull(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var endErr error
	f.bank.SetReceiver(f.auction.Address(), chain.ReceiverFunc(func(ctx context.Context, _ chain.Address, _ chain.Wei) error {
		endErr = f.auction.EndAuction(ctx, owner)
		return nil
	}))

	err := f.auction.PlaceBid(f.ctx, bidder1, tenth)
	assert.ErrorIs(t, err, ErrAuctionNotOpen)
	require.NoError(t, endErr)

	assert.Equal(t, Ended, f.auction.State())
	assert.Equal(t, 10*chain.Ether, f.bank.Balance(bidder1))
	assert.Equal(t, chain.Wei(0), f.bank.Balance(f.auction.Address()))
	assert.Equal(t, chain.Wei(0), f.auction.DepositOf(bidder1))
	assert.Equal(t, 0, f.rentals.Count())
	assert.Empty(t, f.mem.OfKind(journal.BidReceived))
}

func TestReentrantWithdrawIsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)
	require.NoError(t, f.auction.EndAuction(f.ctx, owner))

	var reentryErr error
	calls := 0
	f.bank.SetReceiver(bidder1, chain.ReceiverFunc(func(ctx context.Context, from chain.Address, amount chain.Wei) error {
		calls++
		if calls == 1 {
			reentryErr = f.auction.Withdraw(ctx, bidder1)
		}
		return nil
	}))

	before := f.bank.Balance(bidder1)
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder1))

	assert.ErrorIs(t, reentryErr, ErrNothingToWithdraw)
	assert.Equal(t, 1, calls)
	assert.Equal(t, before+tenth, f.bank.Balance(bidder1))
	assert.Len(t, f.mem.OfKind(journal.WithdrawalCompleted), 1)
}

func TestFailedPayoutRestoresEntitlement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)
	require.NoError(t, f.auction.EndAuction(f.ctx, owner))

	errRefuse := errors.New("refusing payment")
	f.bank.SetReceiver(owner, chain.ReceiverFunc(func(context.Context, chain.Address, chain.Wei) error {
		return errRefuse
	}))
	f.bank.SetReceiver(bidder1, chain.ReceiverFunc(func(context.Context, chain.Address, chain.Wei) error {
		return errRefuse
	}))

	assert.ErrorIs(t, f.auction.Withdraw(f.ctx, owner), errRefuse)
	assert.False(t, f.auction.OwnerHasWithdrawn())
	assert.ErrorIs(t, f.auction.Withdraw(f.ctx, bidder1), errRefuse)
	assert.Equal(t, tenth, f.auction.DepositOf(bidder1))

	f.bank.SetReceiver(owner, nil)
	f.bank.SetReceiver(bidder1, nil)
	require.NoError(t, f.auction.Withdraw(f.ctx, owner))
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder1))
}

func TestCancelRefundsEveryone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	assert.ErrorIs(t, f.auction.Cancel(f.ctx, bidder1), ErrNotOwner)
	require.NoError(t, f.auction.Cancel(f.ctx, owner))
	assert.Equal(t, Cancelled, f.auction.State())
	assert.Equal(t, "Cancelled", f.auction.State().String())
	assert.Len(t, f.mem.OfKind(journal.AuctionCancelled), 1)

	assert.ErrorIs(t, f.auction.Cancel(f.ctx, owner), ErrAuctionNotOpen)
	assert.ErrorIs(t, f.auction.EndAuction(f.ctx, owner), ErrAuctionNotOpen)
	assert.ErrorIs(t, f.auction.Withdraw(f.ctx, owner), ErrNothingToWithdraw)

	before1, before2 := f.bank.Balance(bidder1), f.bank.Balance(bidder2)
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder1))
	require.NoError(t, f.auction.Withdraw(f.ctx, bidder2))
	assert.Equal(t, before1+tenth, f.bank.Balance(bidder1))
	assert.Equal(t, before2+fifth, f.bank.Balance(bidder2))
	assert.Equal(t, 0, f.rentals.Count())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.bidTwice(t)

	s := f.auction.Snapshot()
	assert.Equal(t, uint64(1), s.ItemID)
	assert.Equal(t, owner, s.Owner)
	assert.Equal(t, chain.Wei(5), s.MinIncrement)
	assert.Equal(t, start.Add(72*time.Hour), s.EndTime)
	assert.Equal(t, Open, s.State)
	assert.Equal(t, bidder2, s.HighestBidder)
}
