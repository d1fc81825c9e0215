package drc20

import (
	"encoding/json"
	"math/big"
	"strings"
)

// Token is the JSON-encoded value of the drc20_tick->token table, per
// spec.md §3/§6. Amounts are carried as decimal strings since Go's
// encoding/json has no native big-integer type and a float would lose
// precision above 2^53.
type Token struct {
	TickLowercase     string `json:"tick_lowercase"`
	OriginalTick      string `json:"original_tick"`
	MaxSupply         string `json:"max_supply"`
	MintLimit         string `json:"mint_limit"`
	Decimals          uint8  `json:"decimals"`
	Minted            string `json:"minted"`
	MintCount         uint64 `json:"mint_count"`
	DeployInscription string `json:"deploy_inscription"`
	DeployHeight      uint32 `json:"deploy_height"`
	DeployTimestamp   uint32 `json:"deploy_timestamp"`
	DeployerAddress   string `json:"deployer_address"`
}

func (t *Token) maxSupply() *big.Int  { return mustParseBigInt(t.MaxSupply) }
func (t *Token) mintLimit() *big.Int  { return mustParseBigInt(t.MintLimit) }
func (t *Token) minted() *big.Int     { return mustParseBigInt(t.Minted) }

func mustParseBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// MarshalToken serializes a Token to its stored JSON form.
func MarshalToken(t Token) ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalToken parses a Token from its stored JSON form.
func UnmarshalToken(data []byte) (Token, error) {
	var t Token
	err := json.Unmarshal(data, &t)
	return t, err
}

// Balance is the JSON-encoded value stored under drc20_balance and
// drc20_transferable, a single u128-scale amount represented as a
// decimal string.
type Balance struct {
	Amount string `json:"amount"`
}

func (b Balance) asBigInt() *big.Int {
	return mustParseBigInt(b.Amount)
}

func balanceOf(v *big.Int) Balance {
	return Balance{Amount: v.String()}
}

// MarshalBalance serializes a Balance to its stored JSON form.
func MarshalBalance(b Balance) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBalance parses a Balance from its stored JSON form.
func UnmarshalBalance(data []byte) (Balance, error) {
	var b Balance
	if len(data) == 0 {
		return Balance{Amount: "0"}, nil
	}
	err := json.Unmarshal(data, &b)
	return b, err
}

// PendingTransfer is the JSON-encoded value of drc20_outpoint->transfer.
type PendingTransfer struct {
	Tick        string `json:"tick"`
	Amount      string `json:"amount"`
	FromAddress string `json:"from_address"`
}

// MarshalPendingTransfer serializes a PendingTransfer to its stored JSON form.
func MarshalPendingTransfer(p PendingTransfer) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalPendingTransfer parses a PendingTransfer from its stored JSON form.
func UnmarshalPendingTransfer(data []byte) (PendingTransfer, error) {
	var p PendingTransfer
	err := json.Unmarshal(data, &p)
	return p, err
}

// NormalizeTick lowercases a tick for use as a table key, per spec.md §4.8.
func NormalizeTick(tick string) string {
	return strings.ToLower(tick)
}
