package octobay

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	UserDepositEventName = "UserDepositEvent"
	UserSendEventName    = "UserSendEvent"
)

const eventsABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "githubUser", "type": "string"}
    ],
    "name": "UserDepositEvent",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "account", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "githubUser", "type": "string"}
    ],
    "name": "UserSendEvent",
    "type": "event"
  }
]`

var (
	eventsABI     abi.ABI
	eventsABIOnce sync.Once
	eventsABIErr  error
)

// EventsABI returns the parsed ABI of the transfer events.
func EventsABI() (abi.ABI, error) {
	eventsABIOnce.Do(func() {
		eventsABI, eventsABIErr = abi.JSON(strings.NewReader(eventsABIJSON))
	})
	return eventsABI, eventsABIErr
}
