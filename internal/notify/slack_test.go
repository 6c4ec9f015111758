package notify

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoledger/internal/domain"
)

type fakePoster struct {
	channels []string
	err      error
}

func (f *fakePoster) PostMessage(channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	return "", "", f.err
}

func newTestNotifier(poster *fakePoster) *SlackNotifier {
	return &SlackNotifier{api: poster, channel: "C123", logger: log.New(io.Discard)}
}

func TestHooksPostToChannel(t *testing.T) {
	poster := &fakePoster{}
	hooks := newTestNotifier(poster).Hooks()

	txn := domain.Transaction{Amount: 42.5, Merchant: "Dunkin", Category: "Coffee/Snacks"}
	hooks.Delivered(txn)
	hooks.SavedPending(txn)
	hooks.SaveFailed(txn, errors.New("timeout"))

	require.Len(t, poster.channels, 3)
	for _, ch := range poster.channels {
		assert.Equal(t, "C123", ch)
	}
}

func TestPostFailureIsSwallowed(t *testing.T) {
	poster := &fakePoster{err: errors.New("slack down")}
	hooks := newTestNotifier(poster).Hooks()

	// Must not panic or propagate.
	hooks.Delivered(domain.Transaction{Merchant: "Dunkin"})
}
