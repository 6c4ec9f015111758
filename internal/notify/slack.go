// Package notify pushes pipeline outcomes to a Slack channel so a person
// sees what happened to each captured transaction.
package notify

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/slack-go/slack"

	"autoledger/internal/domain"
	"autoledger/internal/pipeline"
)

// poster is the slice of the Slack API the notifier uses.
type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier implements the pipeline outcome hooks. Posting is
// best-effort: a failed notification is logged and never affects the
// transaction's stored state.
type SlackNotifier struct {
	api     poster
	channel string
	logger  *log.Logger
}

func NewSlack(token, channel string, logger *log.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

// Hooks wires the notifier into a pipeline.
func (n *SlackNotifier) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		Delivered:    n.delivered,
		SavedPending: n.savedPending,
		SaveFailed:   n.saveFailed,
	}
}

func (n *SlackNotifier) delivered(txn domain.Transaction) {
	n.post(fmt.Sprintf(":white_check_mark: Synced $%.2f at %s (%s)",
		txn.Amount, txn.Merchant, txn.Category))
}

func (n *SlackNotifier) savedPending(txn domain.Transaction) {
	n.post(fmt.Sprintf(":hourglass: Saved $%.2f at %s, no spreadsheet configured yet, will sync later",
		txn.Amount, txn.Merchant))
}

func (n *SlackNotifier) saveFailed(txn domain.Transaction, reason error) {
	n.post(fmt.Sprintf(":x: Saved $%.2f at %s but sync failed: %v",
		txn.Amount, txn.Merchant, reason))
}

func (n *SlackNotifier) post(text string) {
	if _, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("slack notification failed", "error", err)
	}
}
