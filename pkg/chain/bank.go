package chain

import (
	"context"
	"fmt"
	"sync"
)

var ErrInsufficientFunds = Reject(ErrInsufficientValue, "insufficient funds")

// Receiver is notified when value arrives at an address. Returning an error
// rejects the transfer. A receiver may call back into any engine while it
// runs; engines must already have applied their own effects by then.
type Receiver interface {
	OnReceive(ctx context.Context, from Address, amount Wei) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, from Address, amount Wei) error

func (f ReceiverFunc) OnReceive(ctx context.Context, from Address, amount Wei) error {
	return f(ctx, from, amount)
}

// Bank holds native-value balances for every address.
type Bank struct {
	mu        sync.Mutex
	balances  map[Address]Wei
	receivers map[Address]Receiver
}

func NewBank() *Bank {
	return &Bank{
		balances:  make(map[Address]Wei),
		receivers: make(map[Address]Receiver),
	}
}

func (b *Bank) Balance(a Address) Wei {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[a]
}

// Mint credits new value to an address (faucet for accounts and tests).
func (b *Bank) Mint(a Address, amount Wei) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.balances[a].Add(amount)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	b.balances[a] = next
	return nil
}

// SetReceiver installs (or with nil, removes) the hook for an address.
func (b *Bank) SetReceiver(a Address, r Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r == nil {
		delete(b.receivers, a)
		return
	}
	b.receivers[a] = r
}

// Transfer moves amount from one address to another.
//
// The sender is debited first and the value is in flight while the
// recipient's receiver runs; it is only credited once the receiver accepts.
// A rejecting receiver gets nothing and the sender is refunded.
func (b *Bank) Transfer(ctx context.Context, from, to Address, amount Wei) error {
	if amount == 0 {
		return nil
	}
	if to.IsZero() {
		return fmt.Errorf("transfer: %w", Reject(ErrInvalidState, "transfer to the zero address"))
	}

	b.mu.Lock()
	if b.balances[from] < amount {
		b.mu.Unlock()
		return fmt.Errorf("transfer %s from %s: %w", amount, from, ErrInsufficientFunds)
	}
	if _, err := b.balances[to].Add(amount); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("transfer: %w", err)
	}
	b.balances[from] -= amount
	r := b.receivers[to]
	b.mu.Unlock()

	if r != nil {
		if err := r.OnReceive(ctx, from, amount); err != nil {
			b.mu.Lock()
			b.balances[from] += amount
			b.mu.Unlock()
			return fmt.Errorf("transfer to %s rejected: %w", to, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := b.balances[to].Add(amount)
	if err != nil {
		b.balances[from] += amount
		return fmt.Errorf("transfer: %w", err)
	}
	b.balances[to] = next
	return nil
}

// Reverse undoes an earlier Transfer from->to by moving amount back from
// to->from. It does not notify any receiver: it is a rollback, not a payment.
func (b *Bank) Reverse(from, to Address, amount Wei) error {
	if amount == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[to] < amount {
		return fmt.Errorf("reverse %s from %s: %w", amount, to, ErrInsufficientFunds)
	}
	next, err := b.balances[from].Add(amount)
	if err != nil {
		return fmt.Errorf("reverse: %w", err)
	}
	b.balances[to] -= amount
	b.balances[from] = next
	return nil
}

// Payments is the slice of Bank an engine needs to move escrowed value.
type Payments interface {
	Transfer(ctx context.Context, from, to Address, amount Wei) error
	Reverse(from, to Address, amount Wei) error
}
