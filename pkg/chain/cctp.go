package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract codec for the CCTP burn-and-mint flow. The orchestrator
// never touches wire formats directly; every encode/decode lives here.

const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "_owner", "type": "address"},
			{"name": "_spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_spender", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const tokenMessengerABIJSON = `[
	{
		"inputs": [
			{"name": "amount", "type": "uint256"},
			{"name": "destinationDomain", "type": "uint32"},
			{"name": "mintRecipient", "type": "bytes32"},
			{"name": "burnToken", "type": "address"}
		],
		"name": "depositForBurn",
		"outputs": [{"name": "nonce", "type": "uint64"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const messageTransmitterABIJSON = `[
	{
		"inputs": [
			{"name": "message", "type": "bytes"},
			{"name": "attestation", "type": "bytes"}
		],
		"name": "receiveMessage",
		"outputs": [{"name": "success", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [{"indexed": false, "name": "message", "type": "bytes"}],
		"name": "MessageSent",
		"type": "event"
	}
]`

var (
	erc20ABI              = mustParseABI(erc20ABIJSON)
	tokenMessengerABI     = mustParseABI(tokenMessengerABIJSON)
	messageTransmitterABI = mustParseABI(messageTransmitterABIJSON)

	// MessageSentTopic is topics[0] of the MessageSent event emitted
	// by the MessageTransmitter on a burn.
	MessageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes)"))
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EncodeAllowanceCall builds the ERC-20 allowance(owner, spender) call.
func EncodeAllowanceCall(token, owner, spender common.Address) ContractCall {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		panic(err)
	}
	return ContractCall{To: token, Data: data}
}

// DecodeAllowance parses the return value of an allowance call.
func DecodeAllowance(data []byte) *big.Int {
	return new(big.Int).SetBytes(data)
}

// EncodeApprove builds the ERC-20 approve(spender, amount) intent.
func EncodeApprove(token, spender common.Address, amount *big.Int) TxIntent {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		panic(err)
	}
	return TxIntent{To: token, Data: data}
}

// EncodeDepositForBurn builds the TokenMessenger burn intent.
func EncodeDepositForBurn(messenger common.Address, amount *big.Int, destinationDomain uint32, mintRecipient, burnToken common.Address) TxIntent {
	data, err := tokenMessengerABI.Pack("depositForBurn",
		amount, destinationDomain, AddressToBytes32(mintRecipient), burnToken)
	if err != nil {
		panic(err)
	}
	return TxIntent{To: messenger, Data: data}
}

// EncodeReceiveMessage builds the destination MessageTransmitter claim
// intent from the raw message and its attestation.
func EncodeReceiveMessage(transmitter common.Address, message, attestation []byte) TxIntent {
	data, err := messageTransmitterABI.Pack("receiveMessage", message, attestation)
	if err != nil {
		panic(err)
	}
	return TxIntent{To: transmitter, Data: data}
}

// ExtractMessageSent returns the raw message payload from the first
// log whose address and topics[0] match the MessageTransmitter's
// MessageSent event. A batched multi-burn transaction emits several
// matching logs; first match wins.
func ExtractMessageSent(logs []Log, transmitter common.Address) ([]byte, bool) {
	for _, l := range logs {
		if l.Address != transmitter {
			continue
		}
		if len(l.Topics) == 0 || l.Topics[0] != MessageSentTopic {
			continue
		}
		out, err := messageTransmitterABI.Unpack("MessageSent", l.Data)
		if err != nil || len(out) != 1 {
			continue
		}
		message, ok := out[0].([]byte)
		if !ok {
			continue
		}
		return message, true
	}
	return nil, false
}

// MessageHash returns the keccak-256 hash of a raw message, the key
// used by the attestation service.
func MessageHash(message []byte) common.Hash {
	return crypto.Keccak256Hash(message)
}

// AddressToBytes32 left-pads an EVM address to the 32-byte recipient
// form used by CCTP contracts.
func AddressToBytes32(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr.Bytes())
	return out
}
