package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"octobayNotifier/internal/metrics"
	"octobayNotifier/internal/model"
	"octobayNotifier/internal/notify"
	"octobayNotifier/internal/octobay"
	"octobayNotifier/internal/storage"
)

// DefaultMailFrom is the sender of notification mails.
const DefaultMailFrom = `"OctoBay" <octobay@uber.space>`

// DefaultReplyToStatusID is the announcement tweet mentions reply to.
const DefaultReplyToStatusID int64 = 1338830029875240961

const eventIgnored = "ignored"

// IdentityResolver looks up a GitHub user's contact channels.
type IdentityResolver interface {
	Resolve(ctx context.Context, login string) (model.Recipient, error)
}

// Mailer delivers a mail and returns its message id.
type Mailer interface {
	Send(ctx context.Context, msg model.Mail) (string, error)
}

// Poster publishes a status and returns its post id.
type Poster interface {
	Post(ctx context.Context, post model.Post) (string, error)
}

// Config holds dispatch settings.
type Config struct {
	MailFrom        string
	ReplyToStatusID int64
}

// Deps are the collaborators of a Dispatcher. Mailer, Poster, Ledger and
// Metrics are optional; a nil channel is skipped.
type Deps struct {
	Decoder  *octobay.Decoder
	Template *notify.Template
	Identity IdentityResolver
	Mailer   Mailer
	Poster   Poster
	Ledger   storage.Ledger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Dispatcher turns transfer logs into notifications. Handle is safe for
// concurrent use; calls share no mutable state.
type Dispatcher struct {
	cfg      Config
	decoder  *octobay.Decoder
	template *notify.Template
	identity IdentityResolver
	mailer   Mailer
	poster   Poster
	ledger   storage.Ledger
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher with its dependencies.
func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}
	if deps.Template == nil {
		return nil, fmt.Errorf("template is nil")
	}
	if deps.Identity == nil {
		return nil, fmt.Errorf("identity resolver is nil")
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = DefaultMailFrom
	}
	if cfg.ReplyToStatusID == 0 {
		cfg.ReplyToStatusID = DefaultReplyToStatusID
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		cfg:      cfg,
		decoder:  deps.Decoder,
		template: deps.Template,
		identity: deps.Identity,
		mailer:   deps.Mailer,
		poster:   deps.Poster,
		ledger:   deps.Ledger,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Handle processes one chain log. Logs that are not transfer events return
// nil without side effects; any other failure drops the event and is returned.
func (d *Dispatcher) Handle(ctx context.Context, log types.Log) error {
	if log.Removed {
		d.logger.Debug("skip removed log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index))
		return nil
	}
	if _, ok := d.decoder.Classify(log.Topics); !ok {
		d.metrics.RecordEvent(eventIgnored)
		return nil
	}

	transfer, err := d.decoder.Decode(log)
	if err != nil {
		d.metrics.RecordDecodeError()
		return fmt.Errorf("decode log %s:%d: %w", log.TxHash.Hex(), log.Index, err)
	}
	d.metrics.RecordEvent(string(transfer.Kind))

	logger := d.logger.With(
		zap.String("tx_hash", transfer.TxHash),
		zap.Uint64("log_index", transfer.LogIndex),
		zap.String("github_login", transfer.GithubLogin),
	)
	logger.Info("transfer received",
		zap.String("kind", string(transfer.Kind)),
		zap.String("sender", transfer.Sender),
		zap.String("amount_eth", transfer.Amount),
		zap.Bool("unregistered", transfer.IsUnregisteredDeposit()),
	)

	recipient, err := d.identity.Resolve(ctx, transfer.GithubLogin)
	if err != nil {
		d.metrics.RecordIdentityLookup(metrics.StatusError)
		return fmt.Errorf("resolve recipient %s: %w", transfer.GithubLogin, err)
	}
	d.metrics.RecordIdentityLookup(metrics.StatusOK)

	switch {
	case recipient.Email != "" && d.mailer != nil:
		return d.sendMail(ctx, logger, transfer, recipient.Email)
	case recipient.TwitterUsername != "" && d.poster != nil:
		return d.postMention(ctx, logger, transfer, recipient.TwitterUsername)
	default:
		logger.Debug("no contact channel",
			zap.Bool("has_email", recipient.Email != ""),
			zap.Bool("has_twitter", recipient.TwitterUsername != ""),
		)
		d.metrics.RecordNotification("none", metrics.StatusSkipped)
		return nil
	}
}

func (d *Dispatcher) sendMail(ctx context.Context, logger *zap.Logger, transfer model.Transfer, to string) error {
	html := d.template.Render(notify.MailFields(transfer))
	messageID, err := d.mailer.Send(ctx, model.Mail{
		From:    d.cfg.MailFrom,
		To:      to,
		Subject: notify.Subject(transfer),
		Text:    html,
		HTML:    html,
	})
	if err != nil {
		d.metrics.RecordNotification(string(model.ChannelEmail), metrics.StatusError)
		return fmt.Errorf("send mail to %s: %w", transfer.GithubLogin, err)
	}
	d.metrics.RecordNotification(string(model.ChannelEmail), metrics.StatusOK)
	logger.Info("mail sent", zap.String("message_id", messageID))

	d.record(ctx, logger, transfer, model.ChannelEmail, to, messageID)
	return nil
}

func (d *Dispatcher) postMention(ctx context.Context, logger *zap.Logger, transfer model.Transfer, handle string) error {
	postID, err := d.poster.Post(ctx, model.Post{
		Status:    notify.TweetStatus(handle, transfer),
		InReplyTo: d.cfg.ReplyToStatusID,
	})
	if err != nil {
		d.metrics.RecordNotification(string(model.ChannelTwitter), metrics.StatusError)
		return fmt.Errorf("post mention for %s: %w", transfer.GithubLogin, err)
	}
	d.metrics.RecordNotification(string(model.ChannelTwitter), metrics.StatusOK)
	logger.Info("tweet posted", zap.String("post_id", postID))

	d.record(ctx, logger, transfer, model.ChannelTwitter, handle, postID)
	return nil
}

func (d *Dispatcher) record(ctx context.Context, logger *zap.Logger, transfer model.Transfer, channel model.Channel, recipient, externalID string) {
	if d.ledger == nil {
		return
	}
	amount := "0"
	if transfer.AmountWei != nil {
		amount = transfer.AmountWei.String()
	}
	err := d.ledger.PutNotification(ctx, model.NotificationRecord{
		BlockNumber: transfer.BlockNumber,
		TxHash:      transfer.TxHash,
		LogIndex:    transfer.LogIndex,
		Kind:        transfer.Kind,
		GithubLogin: transfer.GithubLogin,
		Channel:     channel,
		Recipient:   recipient,
		ExternalID:  externalID,
		AmountWei:   amount,
		SentAt:      d.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		d.metrics.RecordLedgerError()
		logger.Warn("ledger write failed", zap.Error(err))
	}
}
