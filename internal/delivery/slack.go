package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"duewatch/internal/scheduler"
	"duewatch/pkg/logging"
)

// ErrEmptyRecipient is returned when a message has nowhere to go.
var ErrEmptyRecipient = errors.New("recipient is required")

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	Token string
	// APIURL overrides the Web API base URL; it must end with a slash.
	APIURL     string
	HTTPClient *http.Client
}

// Slack delivers alerts through the Slack Web API.
type Slack struct {
	client *slack.Client
}

var _ scheduler.Deliverer = (*Slack)(nil)

// NewSlack creates a Slack deliverer. A bot token is required.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack: bot token is required")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	return &Slack{client: slack.New(cfg.Token, opts...)}, nil
}

// Deliver posts text to recipient once.
func (s *Slack) Deliver(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return ErrEmptyRecipient
	}

	channel, ts, err := s.client.PostMessageContext(ctx, recipient, slack.MsgOptionText(text, false))
	if err != nil {
		var rateLimited *slack.RateLimitedError
		if errors.As(err, &rateLimited) {
			return fmt.Errorf("slack rate limited, retry after %s: %w", rateLimited.RetryAfter, err)
		}
		return fmt.Errorf("slack delivery to %s failed: %w", logging.TruncateID(recipient), err)
	}

	logging.Debug("Delivery", "Slack message %s posted to %s", ts, logging.TruncateID(channel))
	return nil
}
