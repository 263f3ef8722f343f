// Package deploy builds a complete system from configuration and wires the
// trust edges between the engines.
package deploy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/commons/internal/config"
	"github.com/rustyeddy/commons/pkg/auction"
	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/dao"
	"github.com/rustyeddy/commons/pkg/host"
	"github.com/rustyeddy/commons/pkg/journal"
	"github.com/rustyeddy/commons/pkg/ledger"
	"github.com/rustyeddy/commons/pkg/market"
	"github.com/rustyeddy/commons/pkg/rental"
	"github.com/rustyeddy/commons/pkg/ticket"
)

// TicketsRef is the marketplace collection reference for the event's tickets.
const TicketsRef = "tickets"

type System struct {
	Bank    *chain.Bank
	Ledger  *ledger.Ledger
	Rentals *rental.Registry
	Auction *auction.Engine
	DAO     *dao.Engine
	Market  *market.Escrow
	Event   *ticket.Event
	Journal journal.Journal
}

// OpenJournal opens the configured event journal.
func OpenJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "", "memory":
		return journal.NewMemory(), nil
	case "csv":
		return journal.NewCSV(cfg.Path)
	case "sqlite":
		return journal.NewSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}

// Deploy constructs the ledger and every engine. The ledger trusts the
// auction, the DAO and the rental registry to award points, and the rental
// registry accepts agreements from the auction.
func Deploy(ctx context.Context, cfg *config.Config, bank *chain.Bank, j journal.Journal, log zerolog.Logger, clock chain.Clock) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	if clock == nil {
		clock = chain.SystemClock{}
	}
	opts := []host.Option{host.WithClock(clock), host.WithJournal(j), host.WithLogger(log)}

	deployer := chain.Address(cfg.Ledger.Owner)
	l := ledger.New(deployer, cfg.Ledger.Points, opts...)
	rentals := rental.New(deployer, l, opts...)

	duration, err := cfg.Auction.ParseDuration()
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	auc := auction.New(auction.Config{
		ItemID:       cfg.Auction.ItemID,
		Owner:        chain.Address(cfg.Auction.Owner),
		MinIncrement: chain.Wei(cfg.Auction.MinIncrement),
		Duration:     duration,
	}, l, bank, rentals, opts...)

	gov := dao.New(dao.Config{
		Owner:  chain.Address(cfg.DAO.Owner),
		Quorum: cfg.DAO.Quorum,
	}, l, opts...)

	tc, err := cfg.Event.TicketConfig()
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	ev, err := ticket.New(tc, l, bank, opts...)
	if err != nil {
		return nil, fmt.Errorf("deploy event: %w", err)
	}

	escrow := market.New(l, bank, opts...)
	if err := escrow.AddCollection(TicketsRef, ev.Collection()); err != nil {
		return nil, fmt.Errorf("deploy market: %w", err)
	}

	for _, engine := range []chain.Address{auc.Address(), gov.Address(), rentals.Address()} {
		if err := l.Trust(ctx, deployer, engine); err != nil {
			return nil, fmt.Errorf("trust %s: %w", engine, err)
		}
	}
	if err := rentals.Authorize(ctx, deployer, auc.Address()); err != nil {
		return nil, fmt.Errorf("authorize auction: %w", err)
	}

	log.Info().
		Str("ledger", l.Address().String()).
		Str("auction", auc.Address().String()).
		Str("dao", gov.Address().String()).
		Str("market", escrow.Address().String()).
		Str("event", ev.Address().String()).
		Msg("deployed")

	return &System{
		Bank:    bank,
		Ledger:  l,
		Rentals: rentals,
		Auction: auc,
		DAO:     gov,
		Market:  escrow,
		Event:   ev,
		Journal: j,
	}, nil
}
