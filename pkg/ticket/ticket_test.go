package ticket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/commons/pkg/asset"
	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
)

const (
	admin     chain.Address = "admin"
	organizer chain.Address = "organizer"
	fan       chain.Address = "fan"
	stranger  chain.Address = "stranger"
)

type fixture struct {
	bank  *chain.Bank
	event *Event
	mem   *journal.Memory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	mem := journal.NewMemory()

	l := ledger.New(admin, ledger.DefaultSchedule())
	require.NoError(t, l.Register(ctx, fan))

	bank := chain.NewBank()
	require.NoError(t, bank.Mint(fan, chain.MustEther("10")))

	ev, err := New(Config{
		Name:      "NUS Presentation",
		Venue:     "NUS",
		Organizer: organizer,
		Tiers: []Tier{
			{Name: "VIP", Supply: 2, Price: chain.MustEther("1")},
			{Name: "Normal", Supply: 1, Price: chain.MustEther("0.5")},
		},
	}, l, bank, host.WithJournal(mem))
	require.NoError(t, err)

	return fixture{bank: bank, event: ev, mem: mem}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	l := ledger.New(admin, ledger.DefaultSchedule())
	bank := chain.NewBank()

	_, err := New(Config{Organizer: organizer}, l, bank)
	assert.ErrorIs(t, err, ErrNoTiers)

	_, err = New(Config{Tiers: []Tier{{Name: "VIP", Supply: 1}}}, l, bank)
	assert.ErrorIs(t, err, ErrNoOrganizer)
}

func TestMint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	id, err := f.event.Mint(ctx, fan, 0, chain.MustEther("1.25"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	owner, err := f.event.Collection().OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, fan, owner)

	assert.Equal(t, chain.MustEther("1"), f.bank.Balance(organizer))
	assert.Equal(t, chain.MustEther("9"), f.bank.Balance(fan))
	assert.Equal(t, chain.Wei(0), f.bank.Balance(f.event.Address()))

	tier, err := f.event.TicketTier(id)
	require.NoError(t, err)
	assert.Equal(t, "VIP", tier.Name)
	assert.Equal(t, uint64(1), f.event.Tiers()[0].Minted)

	ev, ok := f.mem.Last(journal.TicketMinted)
	require.True(t, ok)
	assert.Equal(t, fan, ev.Actor)
	assert.Equal(t, "VIP", ev.Detail)
	assert.Equal(t, "NUS Presentation/1", ev.Ref)

	_, err = f.event.TicketTier(99)
	assert.ErrorIs(t, err, asset.ErrTokenNotFound)
}

func TestMintRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.event.Mint(ctx, stranger, 0, chain.MustEther("1"))
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = f.event.Mint(ctx, fan, 2, chain.MustEther("1"))
	assert.ErrorIs(t, err, ErrInvalidTier)
	_, err = f.event.Mint(ctx, fan, -1, chain.MustEther("1"))
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = f.event.Mint(ctx, fan, 0, chain.MustEther("0.5"))
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	_, err = f.event.Mint(ctx, fan, 1, chain.MustEther("0.5"))
	require.NoError(t, err)
	_, err = f.event.Mint(ctx, fan, 1, chain.MustEther("0.5"))
	assert.ErrorIs(t, err, ErrSupplyExhausted)

	assert.Equal(t, uint64(1), f.event.Collection().BalanceOf(fan))
	assert.Len(t, f.mem.OfKind(journal.TicketMinted), 1)
}

func TestSupplyIsExact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		_, err := f.event.Mint(ctx, fan, 0, chain.MustEther("1"))
		require.NoError(t, err)
	}
	_, err := f.event.Mint(ctx, fan, 0, chain.MustEther("1"))
	assert.ErrorIs(t, err, ErrSupplyExhausted)
	assert.Equal(t, uint64(2), f.event.Tiers()[0].Minted)
}

func TestMintUnwindsWhenOrganizerRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	boom := errors.New("organizer offline")
	f.bank.SetReceiver(organizer, chain.ReceiverFunc(func(context.Context, chain.Address, chain.Wei) error {
		return boom
	}))

	_, err := f.event.Mint(ctx, fan, 0, chain.MustEther("1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, chain.MustEther("10"), f.bank.Balance(fan))
	assert.Equal(t, uint64(0), f.event.Tiers()[0].Minted)
	assert.Equal(t, uint64(0), f.event.Collection().Count())
}

func TestMintUnwindsWhenRefundRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	boom := errors.New("no refunds")
	f.bank.SetReceiver(fan, chain.ReceiverFunc(func(context.Context, chain.Address, chain.Wei) error {
		return boom
	}))

	_, err := f.event.Mint(ctx, fan, 0, chain.MustEther("2"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, chain.MustEther("10"), f.bank.Balance(fan))
	assert.Equal(t, chain.Wei(0), f.bank.Balance(organizer))
	assert.Equal(t, uint64(0), f.event.Tiers()[0].Minted)
}

func TestTiersAreCopies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tiers := f.event.Tiers()
	tiers[0].Supply = 100
	assert.Equal(t, uint64(2), f.event.Tiers()[0].Supply)
}
