package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatEventOrg renders an Event as an Org-mode block with every field in a
// PROPERTIES drawer, so a journal file stays searchable.
func FormatEventOrg(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s (%s)\n", ev.Kind, shortID(ev.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", ev.ID)
	fmt.Fprintf(&b, ":TIME: %s\n", ev.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":SOURCE: %s\n", ev.Source)
	if !ev.Actor.IsZero() {
		fmt.Fprintf(&b, ":ACTOR: %s\n", ev.Actor)
	}
	if !ev.Subject.IsZero() {
		fmt.Fprintf(&b, ":SUBJECT: %s\n", ev.Subject)
	}
	if ev.Ref != "" {
		fmt.Fprintf(&b, ":REF: %s\n", ev.Ref)
	}
	if ev.Amount > 0 {
		fmt.Fprintf(&b, ":AMOUNT_ETH: %s\n", ev.Amount.Ether())
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, ":DETAIL: %s\n", ev.Detail)
	}
	b.WriteString(":END:\n")
	return b.String()
}

// FormatEventsOrg renders multiple events separated by blank lines.
func FormatEventsOrg(events []Event) string {
	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEventOrg(ev))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
