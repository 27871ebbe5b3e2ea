package model

// NotificationRecord is the ledger entry written after a successful dispatch.
type NotificationRecord struct {
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash"`
	LogIndex    uint64    `json:"log_index"`
	Kind        EventKind `json:"kind"`
	GithubLogin string    `json:"github_login"`
	Channel     Channel   `json:"channel"`
	Recipient   string    `json:"recipient"`
	ExternalID  string    `json:"external_id"`
	AmountWei   string    `json:"amount_wei"`
	SentAt      string    `json:"sent_at"`
}
