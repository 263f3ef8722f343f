package chain

import (
	"strings"

	"github.com/rustyeddy/commons/pkg/id"
)

// Address identifies a principal: a member account or an engine's escrow.
type Address string

// ZeroAddress stands for "nobody", e.g. an auction without a winner.
const ZeroAddress Address = ""

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string {
	if a.IsZero() {
		return "0x0"
	}
	return string(a)
}

// ContractAddress returns a fresh address for an engine of the given kind,
// e.g. "auction:01J...". Engines hold escrowed value under it.
func ContractAddress(kind string) Address {
	return Address(strings.ToLower(kind) + ":" + id.New())
}
