package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/commons/internal/config"
	"github.com/rustyeddy/commons/internal/deploy"
	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/journal"
)

func newDemoCmd(rc *RootConfig) *cobra.Command {
	var (
		funding string
		members []string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an auction, rental, vote and ticket resale against a fresh bank",
		Long: `Deploy every engine from the configuration and walk three members
through a complete round: bidding on the rentable item, completing the
rental, voting on a proposal and reselling an event ticket.

Events go to the configured journal; pass --db to write them to SQLite
for later inspection with "commons events".

Balances are held in 64-bit wei, so no single account can hold more than
about 18.44 ether; --funding must stay below that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(members) != 3 {
				return fmt.Errorf("--members needs exactly three names (got %d)", len(members))
			}
			fund, err := chain.ParseEther(funding)
			if err != nil {
				return fmt.Errorf("--funding: %w", err)
			}

			cfg, err := config.Load(rc.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.Journal = config.JournalConfig{Type: "sqlite", Path: rc.DBPath}
			}

			j, err := deploy.OpenJournal(cfg.Journal)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer j.Close()

			bank := chain.NewBank()
			addrs := make([]chain.Address, len(members))
			for i, m := range members {
				addrs[i] = chain.Address(m)
				if err := bank.Mint(addrs[i], fund); err != nil {
					return err
				}
			}

			clock := chain.NewManualClock(time.Now())
			sys, err := deploy.Deploy(cmd.Context(), cfg, bank, j, rc.Log, clock)
			if err != nil {
				return err
			}

			d := demo{
				out:   cmd.OutOrStdout(),
				sys:   sys,
				clock: clock,
				owner: chain.Address(cfg.Auction.Owner),
				chair: chain.Address(cfg.DAO.Owner),
			}
			if err := d.run(cmd.Context(), addrs[0], addrs[1], addrs[2]); err != nil {
				return err
			}
			if mem, ok := j.(*journal.Memory); ok {
				fmt.Fprintf(d.out, "\n%d events recorded in memory\n", mem.Len())
			} else {
				fmt.Fprintf(d.out, "\nevents written to %s journal at %s\n", cfg.Journal.Type, cfg.Journal.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&funding, "funding", "10", "ether minted to each member (at most 18.44)")
	cmd.Flags().StringSliceVar(&members, "members", []string{"alice", "bob", "carol"}, "three member names")
	return cmd
}

type demo struct {
	out   io.Writer
	sys   *deploy.System
	clock *chain.ManualClock
	owner chain.Address
	chair chain.Address
}

func (d demo) step(format string, args ...any) {
	fmt.Fprintf(d.out, "→ "+format+"\n", args...)
}

func (d demo) run(ctx context.Context, alice, bob, carol chain.Address) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sys := d.sys

	for _, who := range []chain.Address{alice, bob, carol} {
		if err := sys.Ledger.Register(ctx, who); err != nil {
			return err
		}
	}
	d.step("registered %s, %s and %s", alice, bob, carol)

	// Auction for the rentable item.
	low, high := chain.MustEther("0.1"), chain.MustEther("0.2")
	if err := sys.Auction.PlaceBid(ctx, alice, low); err != nil {
		return err
	}
	if err := sys.Auction.PlaceBid(ctx, bob, high); err != nil {
		return err
	}
	d.step("bids placed: %s %s ether, %s %s ether", alice, low.Ether(), bob, high.Ether())

	if err := sys.Auction.EndAuction(ctx, d.owner); err != nil {
		return err
	}
	snap := sys.Auction.Snapshot()
	d.step("auction ended: %s wins at %s ether", snap.HighestBidder, snap.HighestBindingBid.Ether())

	agreementID := sys.Auction.AgreementID()
	d.clock.Advance(24 * time.Hour)
	if err := sys.Rentals.CompleteAgreement(ctx, snap.HighestBidder, agreementID); err != nil {
		return err
	}
	d.step("rental agreement %d completed by %s", agreementID, snap.HighestBidder)

	for _, who := range []chain.Address{d.owner, alice, bob} {
		if err := sys.Auction.Withdraw(ctx, who); err != nil {
			return err
		}
	}
	d.step("auction proceeds and deposits withdrawn")

	// Governance.
	id, err := sys.DAO.CreateProposal(ctx, carol, "Extend the rental programme")
	if err != nil {
		return err
	}
	for _, who := range []chain.Address{alice, bob, carol} {
		if err := sys.DAO.Vote(ctx, who, id, who != carol); err != nil {
			return err
		}
	}
	if err := sys.DAO.EndProposal(ctx, d.chair, id); err != nil {
		return err
	}
	p, err := sys.DAO.Proposal(id)
	if err != nil {
		return err
	}
	d.step("proposal %d %s (%d for, %d against)", id, p.State, p.VotesFor, p.VotesAgainst)

	// Tickets and resale.
	tiers := sys.Event.Tiers()
	ticketID, err := sys.Event.Mint(ctx, carol, 0, tiers[0].Price)
	if err != nil {
		return err
	}
	d.step("%s bought %s ticket #%d for %s ether", carol, tiers[0].Name, ticketID, tiers[0].Price.Ether())

	resale := tiers[0].Price + tiers[0].Price/2
	if err := sys.Event.Collection().Approve(ctx, carol, sys.Market.Address(), ticketID); err != nil {
		return err
	}
	if err := sys.Market.ListItem(ctx, carol, deploy.TicketsRef, ticketID, resale); err != nil {
		return err
	}
	if err := sys.Market.Buy(ctx, alice, deploy.TicketsRef, ticketID, resale); err != nil {
		return err
	}
	d.step("%s resold ticket #%d to %s for %s ether", carol, ticketID, alice, resale.Ether())

	fmt.Fprintln(d.out, "\nmember   points   balance (ether)")
	for _, who := range []chain.Address{alice, bob, carol} {
		fmt.Fprintf(d.out, "%-8s %6d   %s\n", who, sys.Ledger.PointsOf(who), sys.Bank.Balance(who).Ether())
	}
	fmt.Fprintf(d.out, "%-8s %6s   %s\n", d.owner, "-", sys.Bank.Balance(d.owner).Ether())
	return nil
}
