package solana

import "context"

// LogSubscriber streams program logs.
type LogSubscriber interface {
	// SubscribeLogs subscribes to logs mentioning any of the filter's
	// addresses. The channel is closed when the client closes.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	Close() error
}

// LogsFilter selects which transactions' logs are streamed.
type LogsFilter struct {
	Mentions []string // empty means all
}

func (f LogsFilter) params(commitment string) []any {
	sel := map[string]any{"all": nil}
	if len(f.Mentions) > 0 {
		sel = map[string]any{"mentions": f.Mentions}
	}
	return []any{sel, map[string]string{"commitment": commitment}}
}

// LogNotification is one logsNotification message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Failed    bool
}
