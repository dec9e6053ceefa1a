package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
)

// Notifier delivers structured events. Rendering is the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, e domain.Event) error
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers e to all notifiers; one failure does not stop the rest.
func (m Multi) Notify(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Filter forwards only the event types listed in Allow.
type Filter struct {
	Next  Notifier
	Allow map[domain.EventType]bool
}

// NewFilter creates a Filter passing the given types to next.
func NewFilter(next Notifier, allow ...domain.EventType) *Filter {
	f := &Filter{Next: next, Allow: make(map[domain.EventType]bool, len(allow))}
	for _, t := range allow {
		f.Allow[t] = true
	}
	return f
}

// Notify drops events whose type is not allowed.
func (f *Filter) Notify(ctx context.Context, e domain.Event) error {
	if f.Next == nil || !f.Allow[e.Type] {
		return nil
	}
	return f.Next.Notify(ctx, e)
}

// LogNotifier writes one line per event.
type LogNotifier struct {
	Logger *log.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses log.Default().
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify logs the event title and body.
func (n *LogNotifier) Notify(_ context.Context, e domain.Event) error {
	title, body := Render(e)
	n.Logger.Printf("%s | %s", title, strings.ReplaceAll(body, "\n", " | "))
	observability.RecordNotification("log", nil)
	return nil
}

// Render turns an event into a short title and a multi-line body.
func Render(e domain.Event) (string, string) {
	switch e.Type {
	case domain.EventCandidateScored:
		var b strings.Builder
		token := ""
		if e.Candidate != nil {
			token = e.Candidate.TokenAddress
		}
		if e.Score == nil {
			return "Candidate scored", token
		}
		if e.Score.Rejected {
			fmt.Fprintf(&b, "%s rejected: %s", token, e.Score.RejectReason)
			return "Candidate rejected", b.String()
		}
		fmt.Fprintf(&b, "%s score %.1f/100 (%s)", token, e.Score.Total, e.Action)
		for _, c := range e.Score.Components {
			fmt.Fprintf(&b, "\n%s: %.1f/%.0f", c.Dimension, c.Points, c.MaxPoints)
		}
		return "New pair " + strings.ToUpper(e.Action), b.String()

	case domain.EventPositionOpened:
		p := e.Position
		if p == nil {
			return "Position opened", ""
		}
		return "Position opened", fmt.Sprintf("%s %s SOL @ %.10f\nscore %.1f\ntx %s",
			label(p), p.EntryCost.StringFixed(4), p.EntryPrice, p.Score, p.EntryTx)

	case domain.EventPositionClosed:
		p := e.Position
		if p == nil {
			return "Position closed", ""
		}
		ret := 0.0
		if p.EntryCost.IsPositive() {
			ret, _ = p.RealizedPnL.Div(p.EntryCost).Float64()
		}
		return "Position closed: " + string(p.ExitReason), fmt.Sprintf("%s pnl %s SOL (%+.1f%%)\nheld %s\ntx %s",
			label(p), p.RealizedPnL.StringFixed(4), ret*100, p.HoldDuration(e.At).Round(time.Second), p.ExitTx)

	case domain.EventSellFailed:
		if e.Position == nil {
			return "Sell failed", e.Error
		}
		return "Sell failed", fmt.Sprintf("%s attempt %d: %s", label(e.Position), e.Position.SellAttempts, e.Error)
	}
	return string(e.Type), ""
}

func label(p *domain.Position) string {
	if p.Symbol != "" {
		return p.Symbol + " (" + short(p.TokenAddress) + ")"
	}
	return short(p.TokenAddress)
}

func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

var _ Notifier = (*LogNotifier)(nil)
var _ Notifier = Multi(nil)
var _ Notifier = (*Filter)(nil)
