package auction

import "github.com/rustyeddy/commons/pkg/chain"

// Book is the price state of an English auction that escrows every bid.
//
// HighestBid is the largest total any bidder has deposited.
// HighestBindingBid is what the leader owes if the auction ended now: one
// increment over the runner-up, capped at the leader's own total.
type Book struct {
	HighestBidder     chain.Address
	HighestBid        chain.Wei
	HighestBindingBid chain.Wei
}

// Rebid returns the book after bidder raises their total deposit to total.
// Callers must already have rejected totals at or below HighestBindingBid.
func Rebid(b Book, bidder chain.Address, total, minIncrement chain.Wei) Book {
	if total <= b.HighestBid {
		// Runner-up pushed the leader's price up but did not overtake.
		b.HighestBindingBid = minWei(satAdd(total, minIncrement), b.HighestBid)
		return b
	}

	if bidder != b.HighestBidder {
		// New leader pays at most one increment over the old top bid.
		b.HighestBindingBid = minWei(total, satAdd(b.HighestBid, minIncrement))
		b.HighestBidder = bidder
	}
	b.HighestBid = total
	return b
}

func minWei(a, b chain.Wei) chain.Wei {
	if a < b {
		return a
	}
	return b
}

func satAdd(a, b chain.Wei) chain.Wei {
	sum, err := a.Add(b)
	if err != nil {
		return chain.Wei(^uint64(0))
	}
	return sum
}
