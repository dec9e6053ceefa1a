package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/observability"
)

// multicastSender is the subset of *messaging.Client used by FCMNotifier.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMOptions configures push delivery.
type FCMOptions struct {
	CredentialsFile string   // service account JSON path
	CredentialsJSON string   // inline service account JSON, used when file is empty
	DeviceTokens    []string // recipients
	ChannelID       string   // android channel, default "pair_alerts"
	Logger          *log.Logger
}

// FCMNotifier pushes events to mobile devices via Firebase Cloud Messaging.
// Without credentials or device tokens it is disabled and Notify is a no-op.
type FCMNotifier struct {
	client  multicastSender
	tokens  []string
	channel string
	logger  *log.Logger
}

// NewFCMNotifier initializes the Firebase app and messaging client.
func NewFCMNotifier(ctx context.Context, opts FCMOptions) (*FCMNotifier, error) {
	n := &FCMNotifier{tokens: opts.DeviceTokens, channel: opts.ChannelID, logger: opts.Logger}
	if n.logger == nil {
		n.logger = log.Default()
	}
	if n.channel == "" {
		n.channel = "pair_alerts"
	}

	var cred option.ClientOption
	switch {
	case opts.CredentialsFile != "":
		cred = option.WithCredentialsFile(opts.CredentialsFile)
	case opts.CredentialsJSON != "":
		cred = option.WithCredentialsJSON([]byte(opts.CredentialsJSON))
	default:
		n.logger.Println("No Firebase credentials configured, FCM disabled")
		return n, nil
	}

	app, err := firebase.NewApp(ctx, nil, cred)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	n.client = client
	n.logger.Printf("FCM enabled for %d device(s)", len(n.tokens))
	return n, nil
}

// Enabled reports whether pushes will be sent.
func (n *FCMNotifier) Enabled() bool {
	return n.client != nil && len(n.tokens) > 0
}

// Notify sends the rendered event to all device tokens.
func (n *FCMNotifier) Notify(ctx context.Context, e domain.Event) error {
	if !n.Enabled() {
		return nil
	}
	title, body := Render(e)
	msg := &messaging.MulticastMessage{
		Tokens: n.tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: eventData(e),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: n.channel,
				Priority:  messaging.PriorityHigh,
			},
		},
	}

	resp, err := n.client.SendEachForMulticast(ctx, msg)
	observability.RecordNotification("fcm", err)
	if err != nil {
		return fmt.Errorf("send multicast: %w", err)
	}
	if resp.FailureCount > 0 {
		n.logger.Printf("FCM %s: %d sent, %d failed", e.Type, resp.SuccessCount, resp.FailureCount)
	}
	return nil
}

// eventData flattens the event into the string map FCM requires.
func eventData(e domain.Event) map[string]string {
	data := map[string]string{
		"type": string(e.Type),
		"at":   strconv.FormatInt(e.At.Unix(), 10),
	}
	if e.Candidate != nil {
		data["token"] = e.Candidate.TokenAddress
		data["pair"] = e.Candidate.PairAddress
	}
	if e.Score != nil {
		data["score"] = strconv.FormatFloat(e.Score.Total, 'f', 2, 64)
		data["rejected"] = strconv.FormatBool(e.Score.Rejected)
	}
	if e.Action != "" {
		data["action"] = e.Action
	}
	if p := e.Position; p != nil {
		data["position_id"] = p.ID
		data["token"] = p.TokenAddress
		data["status"] = string(p.Status)
		if p.ExitReason != "" {
			data["exit_reason"] = string(p.ExitReason)
			data["pnl"] = p.RealizedPnL.String()
		}
	}
	return data
}

var _ Notifier = (*FCMNotifier)(nil)
