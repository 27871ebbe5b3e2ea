package model

import "math/big"

// EventKind distinguishes the two transfer events emitted by the contract.
type EventKind string

const (
	// KindDeposit is a transfer to a GitHub user without a registered address.
	KindDeposit EventKind = "deposit"
	// KindSend is a transfer to a user that already registered an address.
	KindSend EventKind = "send"
)

// Transfer is a decoded UserDepositEvent or UserSendEvent.
type Transfer struct {
	Kind        EventKind `json:"kind"`
	Sender      string    `json:"sender"`
	AmountWei   *big.Int  `json:"amount_wei"`
	Amount      string    `json:"amount"`
	GithubLogin string    `json:"github_login"`

	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
}

// IsUnregisteredDeposit reports whether the recipient still has to register
// before withdrawing.
func (t Transfer) IsUnregisteredDeposit() bool {
	return t.Kind == KindDeposit
}

// Recipient holds the contact channels of a GitHub user. Empty means absent.
type Recipient struct {
	Email           string `json:"email"`
	TwitterUsername string `json:"twitter_username"`
}
