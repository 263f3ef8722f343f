package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Wei
		wantErr bool
	}{
		{"0.1", 100_000_000_000_000_000, false},
		{"0.2", 200_000_000_000_000_000, false},
		{"1", Ether, false},
		{"0", 0, false},
		{"0.000000000000000001", 1, false},
		{"0.0000000000000000001", 0, true},
		{"-1", 0, true},
		{"19", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEther(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWeiEther(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.1", MustEther("0.1").Ether())
	assert.Equal(t, "2", (2 * Ether).Ether())
	assert.Equal(t, "0.000000000000000005", Wei(5).Ether())
	assert.Equal(t, "0", Wei(0).Ether())
}

func TestWeiAddOverflow(t *testing.T) {
	t.Parallel()

	_, err := Wei(^uint64(0)).Add(1)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.ErrorIs(t, err, ErrInvalidState)

	sum, err := Wei(2).Add(3)
	require.NoError(t, err)
	assert.Equal(t, Wei(5), sum)
}

func TestRejectionMatchesCategoryAndItself(t *testing.T) {
	t.Parallel()

	errNope := Reject(ErrUnauthorized, "Not authorized")
	wrapped := fmt.Errorf("vote: %w", errNope)

	assert.ErrorIs(t, wrapped, errNope)
	assert.ErrorIs(t, wrapped, ErrUnauthorized)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "Not authorized", errNope.Error())
}

func TestContractAddress(t *testing.T) {
	t.Parallel()

	a := ContractAddress("Auction")
	b := ContractAddress("Auction")
	assert.True(t, strings.HasPrefix(string(a), "auction:"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "0x0", ZeroAddress.String())
}

func TestManualClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestBankTransfer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("alice", 10))

	require.NoError(t, b.Transfer(ctx, "alice", "bob", 4))
	assert.Equal(t, Wei(6), b.Balance("alice"))
	assert.Equal(t, Wei(4), b.Balance("bob"))

	err := b.Transfer(ctx, "alice", "bob", 7)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.ErrorIs(t, err, ErrInsufficientValue)
	assert.Equal(t, Wei(6), b.Balance("alice"))

	assert.NoError(t, b.Transfer(ctx, "nobody", "bob", 0))
	assert.ErrorIs(t, b.Transfer(ctx, "alice", ZeroAddress, 1), ErrInvalidState)
}

func TestBankReceiverSeesValueInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("alice", 10))

	var during Wei
	b.SetReceiver("bob", ReceiverFunc(func(ctx context.Context, from Address, amount Wei) error {
		during = b.Balance("bob")
		assert.Equal(t, Address("alice"), from)
		assert.Equal(t, Wei(3), amount)
		return nil
	}))

	require.NoError(t, b.Transfer(ctx, "alice", "bob", 3))
	assert.Equal(t, Wei(0), during)
	assert.Equal(t, Wei(3), b.Balance("bob"))
}

func TestBankReceiverRejectionRefunds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("alice", 10))

	errNo := errors.New("no thanks")
	b.SetReceiver("bob", ReceiverFunc(func(context.Context, Address, Wei) error { return errNo }))

	err := b.Transfer(ctx, "alice", "bob", 3)
	assert.ErrorIs(t, err, errNo)
	assert.Equal(t, Wei(10), b.Balance("alice"))
	assert.Equal(t, Wei(0), b.Balance("bob"))

	b.SetReceiver("bob", nil)
	assert.NoError(t, b.Transfer(ctx, "alice", "bob", 3))
}

func TestBankMintOverflow(t *testing.T) {
	t.Parallel()

	b := NewBank()
	require.NoError(t, b.Mint("alice", Wei(^uint64(0))))
	assert.ErrorIs(t, b.Mint("alice", 1), ErrOverflow)
}

func TestBankReverseSkipsReceiver(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := NewBank()
	require.NoError(t, b.Mint("alice", 10))
	require.NoError(t, b.Transfer(ctx, "alice", "bob", 4))

	called := false
	b.SetReceiver("alice", ReceiverFunc(func(context.Context, Address, Wei) error {
		called = true
		return errors.New("should not run")
	}))

	require.NoError(t, b.Reverse("alice", "bob", 4))
	assert.False(t, called)
	assert.Equal(t, Wei(10), b.Balance("alice"))
	assert.Equal(t, Wei(0), b.Balance("bob"))

	assert.ErrorIs(t, b.Reverse("alice", "bob", 1), ErrInsufficientFunds)
}
