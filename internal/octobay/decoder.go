package octobay

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"octobayNotifier/internal/model"
)

// ErrUnknownEvent is returned for logs that carry neither transfer signature.
var ErrUnknownEvent = errors.New("not a transfer event")

// Decoder recognizes and decodes the contract's transfer events.
type Decoder struct {
	deposit abi.Event
	send    abi.Event
}

// NewDecoder builds a Decoder from the embedded event ABI.
func NewDecoder() (*Decoder, error) {
	parsed, err := EventsABI()
	if err != nil {
		return nil, fmt.Errorf("parse events abi: %w", err)
	}
	deposit, ok := parsed.Events[UserDepositEventName]
	if !ok {
		return nil, fmt.Errorf("abi missing %s", UserDepositEventName)
	}
	send, ok := parsed.Events[UserSendEventName]
	if !ok {
		return nil, fmt.Errorf("abi missing %s", UserSendEventName)
	}
	return &Decoder{deposit: deposit, send: send}, nil
}

// Topics returns the signature hashes of the deposit and send events.
func (d *Decoder) Topics() []common.Hash {
	return []common.Hash{d.deposit.ID, d.send.ID}
}

// Classify reports which transfer event a log carries. Any topic may hold the
// signature; a deposit match wins over a send match.
func (d *Decoder) Classify(topics []common.Hash) (model.EventKind, bool) {
	var isSend bool
	for _, topic := range topics {
		switch topic {
		case d.deposit.ID:
			return model.KindDeposit, true
		case d.send.ID:
			isSend = true
		}
	}
	if isSend {
		return model.KindSend, true
	}
	return "", false
}

// Decode unpacks the (address, uint256, string) payload of a transfer log.
func (d *Decoder) Decode(log types.Log) (model.Transfer, error) {
	kind, ok := d.Classify(log.Topics)
	if !ok {
		return model.Transfer{}, ErrUnknownEvent
	}

	event := d.send
	if kind == model.KindDeposit {
		event = d.deposit
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.Transfer{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 3 {
		return model.Transfer{}, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}

	sender, err := asAddress(values[0])
	if err != nil {
		return model.Transfer{}, fmt.Errorf("sender: %w", err)
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return model.Transfer{}, fmt.Errorf("amount: %w", err)
	}
	login, ok := values[2].(string)
	if !ok {
		return model.Transfer{}, fmt.Errorf("unsupported string type %T", values[2])
	}

	return model.Transfer{
		Kind:        kind,
		Sender:      sender.Hex(),
		AmountWei:   amount,
		Amount:      FormatEther(amount),
		GithubLogin: login,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
	}, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
