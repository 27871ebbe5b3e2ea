package dispatcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"octobayNotifier/internal/model"
	"octobayNotifier/internal/notify"
	"octobayNotifier/internal/octobay"
)

const testTemplate = "<title>{{ title }}</title><span>{{ previewText }}</span><h1>{{ headline }}</h1><p>{{ text }}</p>"

var errUnavailable = errors.New("service unavailable")

type fakeIdentity struct {
	mu         sync.Mutex
	recipients map[string]model.Recipient
	err        error
	logins     []string
}

func (f *fakeIdentity) Resolve(_ context.Context, login string) (model.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, login)
	if f.err != nil {
		return model.Recipient{}, f.err
	}
	return f.recipients[login], nil
}

func (f *fakeIdentity) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logins)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []model.Mail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg model.Mail) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "<msg-1@uber.space>", nil
}

type fakePoster struct {
	mu    sync.Mutex
	posts []model.Post
	err   error
}

func (f *fakePoster) Post(_ context.Context, post model.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.posts = append(f.posts, post)
	return "1339000000000000001", nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records []model.NotificationRecord
	err     error
}

func (f *fakeLedger) PutNotification(_ context.Context, record model.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

type fixture struct {
	identity   *fakeIdentity
	mailer     *fakeMailer
	poster     *fakePoster
	ledger     *fakeLedger
	decoder    *octobay.Decoder
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, recipients map[string]model.Recipient) *fixture {
	t.Helper()

	decoder, err := octobay.NewDecoder()
	require.NoError(t, err)
	tmpl, err := notify.ParseTemplate(testTemplate)
	require.NoError(t, err)

	f := &fixture{
		identity: &fakeIdentity{recipients: recipients},
		mailer:   &fakeMailer{},
		poster:   &fakePoster{},
		ledger:   &fakeLedger{},
		decoder:  decoder,
	}
	f.dispatcher, err = NewDispatcher(Config{}, Deps{
		Decoder:  decoder,
		Template: tmpl,
		Identity: f.identity,
		Mailer:   f.mailer,
		Poster:   f.poster,
		Ledger:   f.ledger,
	})
	require.NoError(t, err)
	return f
}

func transferLog(t *testing.T, eventName string, sender string, wei string, login string) types.Log {
	t.Helper()

	parsed, err := octobay.EventsABI()
	require.NoError(t, err)
	event := parsed.Events[eventName]

	amount, ok := new(big.Int).SetString(wei, 10)
	require.True(t, ok)
	data, err := event.Inputs.NonIndexed().Pack(common.HexToAddress(sender), amount, login)
	require.NoError(t, err)

	return types.Log{
		Address:     common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Topics:      []common.Hash{event.ID},
		Data:        data,
		BlockNumber: 11500000,
		TxHash:      common.HexToHash("0xdef456"),
		Index:       2,
	}
}
