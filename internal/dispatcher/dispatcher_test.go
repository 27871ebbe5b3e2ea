package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"octobayNotifier/internal/model"
	"octobayNotifier/internal/octobay"
)

const aliceSender = "0xABC0000000000000000000000000000000000001"

func TestHandleDepositSendsMail(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "500000000000000000", "alice")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "alice@example.com", mail.To)
	assert.Equal(t, DefaultMailFrom, mail.From)
	assert.Contains(t, mail.Subject, "0.5 ETH")
	assert.Contains(t, mail.HTML, "You need to connect an Ethereum address with your GitHub account before you can withdraw the deposit.")
	assert.Contains(t, mail.HTML, common.HexToAddress(aliceSender).Hex())
	assert.Contains(t, mail.HTML, "<h1>You received 0.5 ETH.</h1>")
	assert.Equal(t, mail.HTML, mail.Text)
	assert.Empty(t, f.poster.posts)
	assert.Equal(t, []string{"alice"}, f.identity.logins)

	require.Len(t, f.ledger.records, 1)
	record := f.ledger.records[0]
	assert.Equal(t, model.ChannelEmail, record.Channel)
	assert.Equal(t, model.KindDeposit, record.Kind)
	assert.Equal(t, "<msg-1@uber.space>", record.ExternalID)
	assert.Equal(t, "500000000000000000", record.AmountWei)
	assert.Equal(t, uint64(2), record.LogIndex)
}

func TestHandleSendMailUsesRegisteredVariant(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"bob": {Email: "bob@example.com"},
	})

	log := transferLog(t, octobay.UserSendEventName, aliceSender, "1000000000000000000", "bob")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "OctoBay: You received 1 ETH.", mail.Subject)
	assert.Contains(t, mail.HTML, "Since you've already connected an Ethereum address with your GitHub account")
	assert.NotContains(t, mail.HTML, "before you can withdraw the deposit")
}

func TestHandleEmailTakesPriority(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com", TwitterUsername: "alice_tw"},
	})

	log := transferLog(t, octobay.UserSendEventName, aliceSender, "1000000000000000000", "alice")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	assert.Len(t, f.mailer.sent, 1)
	assert.Empty(t, f.poster.posts)
}

func TestHandleMailFailureDoesNotFallBack(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com", TwitterUsername: "alice_tw"},
	})
	f.mailer.err = errUnavailable

	log := transferLog(t, octobay.UserSendEventName, aliceSender, "1000000000000000000", "alice")
	err := f.dispatcher.Handle(context.Background(), log)
	require.ErrorIs(t, err, errUnavailable)

	assert.Empty(t, f.poster.posts)
	assert.Empty(t, f.ledger.records)
}

func TestHandleTwitterFallback(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"carol": {TwitterUsername: "carol_tw"},
	})

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "2000000000000000000", "carol")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	assert.Empty(t, f.mailer.sent)
	require.Len(t, f.poster.posts, 1)
	post := f.poster.posts[0]
	assert.Equal(t, DefaultReplyToStatusID, post.InReplyTo)
	assert.Equal(t, "@carol_tw You received 2 ETH via @OctoBayApp. Go to https://octobay.uber.space, register and withdraw the deposit.", post.Status)

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, model.ChannelTwitter, f.ledger.records[0].Channel)
	assert.Equal(t, "1339000000000000001", f.ledger.records[0].ExternalID)
}

func TestHandleTwitterWhenMailerUnconfigured(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com", TwitterUsername: "alice_tw"},
	})
	f.dispatcher.mailer = nil

	log := transferLog(t, octobay.UserSendEventName, aliceSender, "1000000000000000000", "alice")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	require.Len(t, f.poster.posts, 1)
	assert.Contains(t, f.poster.posts[0].Status, "The amount should already be in your wallet.")
}

func TestHandleNoChannel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, map[string]model.Recipient{})
	f.dispatcher.logger = zap.New(core)

	log := transferLog(t, octobay.UserSendEventName, aliceSender, "1000000000000000000", "dave")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.poster.posts)
	assert.Empty(t, f.ledger.records)
	assert.Equal(t, 1, f.identity.calls())
	assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All())
	assert.Empty(t, logs.FilterLevelExact(zapcore.WarnLevel).All())
}

func TestHandleIgnoresUnknownTopics(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})

	log := types.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))},
		Data:   []byte{0x01, 0x02},
	}
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	assert.Zero(t, f.identity.calls())
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.poster.posts)
}

func TestHandleIgnoresRemovedLogs(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "500000000000000000", "alice")
	log.Removed = true
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	assert.Zero(t, f.identity.calls())
	assert.Empty(t, f.mailer.sent)
}

func TestHandleDecodeFailure(t *testing.T) {
	f := newFixture(t, nil)

	log := types.Log{
		Topics: []common.Hash{f.decoder.Topics()[0]},
		Data:   []byte{0xde, 0xad, 0xbe, 0xef},
	}
	err := f.dispatcher.Handle(context.Background(), log)
	require.Error(t, err)
	assert.False(t, errors.Is(err, octobay.ErrUnknownEvent))
	assert.Zero(t, f.identity.calls())
}

func TestHandleIdentityFailureThenRecovers(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})
	f.identity.err = errUnavailable

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "500000000000000000", "alice")
	err := f.dispatcher.Handle(context.Background(), log)
	require.ErrorIs(t, err, errUnavailable)
	assert.Empty(t, f.mailer.sent)

	f.identity.err = nil
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))
	assert.Len(t, f.mailer.sent, 1)
}

func TestHandleLedgerFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})
	f.ledger.err = errors.New("disk full")

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "500000000000000000", "alice")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))
	assert.Len(t, f.mailer.sent, 1)
}

func TestHandleRecordsSentAt(t *testing.T) {
	f := newFixture(t, map[string]model.Recipient{
		"alice": {Email: "alice@example.com"},
	})
	f.dispatcher.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	log := transferLog(t, octobay.UserDepositEventName, aliceSender, "500000000000000000", "alice")
	require.NoError(t, f.dispatcher.Handle(context.Background(), log))

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z", f.ledger.records[0].SentAt)
}

func TestNewDispatcherRequiresDeps(t *testing.T) {
	_, err := NewDispatcher(Config{}, Deps{})
	require.Error(t, err)
}
