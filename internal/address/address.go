// Package address decodes Dogecoin Base58Check addresses into their
// underlying 20-byte hashes. It is narrowed from the teacher's
// multi-chain, multi-address-type derivation package down to the two
// script kinds an indexer needs to recognize when scanning outputs:
// P2PKH and P2SH.
package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/dogeindex/dogeindexer/internal/chain"
)

// Kind identifies which script template a decoded address corresponds to.
type Kind int

const (
	KindUnknown Kind = iota
	KindP2PKH
	KindP2SH
)

func (k Kind) String() string {
	switch k {
	case KindP2PKH:
		return "p2pkh"
	case KindP2SH:
		return "p2sh"
	default:
		return "unknown"
	}
}

// Decoded is a Base58Check-decoded Dogecoin address.
type Decoded struct {
	Kind Kind
	Hash [20]byte
}

// Decode parses a Dogecoin Base58Check address string for the given
// network, classifying it as P2PKH or P2SH from its version byte.
func Decode(addr string, network chain.Network) (Decoded, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return Decoded{}, fmt.Errorf("address: %w", err)
	}
	if len(payload) != 20 {
		return Decoded{}, fmt.Errorf("address: unexpected payload length %d", len(payload))
	}

	params := chain.Get(network)

	var kind Kind
	switch version {
	case params.PubKeyHashAddrID:
		kind = KindP2PKH
	case params.ScriptHashAddrID:
		kind = KindP2SH
	default:
		return Decoded{}, fmt.Errorf("address: unrecognized version byte 0x%02x", version)
	}

	var d Decoded
	d.Kind = kind
	copy(d.Hash[:], payload)
	return d, nil
}

// Encode renders a 20-byte hash as a Dogecoin Base58Check address of the
// given kind for the given network.
func Encode(hash [20]byte, kind Kind, network chain.Network) (string, error) {
	params := chain.Get(network)

	var version byte
	switch kind {
	case KindP2PKH:
		version = params.PubKeyHashAddrID
	case KindP2SH:
		version = params.ScriptHashAddrID
	default:
		return "", fmt.Errorf("address: cannot encode unknown kind")
	}

	return base58.CheckEncode(hash[:], version), nil
}

// FromScriptPubKey classifies a raw output script as P2PKH or P2SH and
// returns its address, matching only the two fixed templates Dogecoin's
// standard wallet software produces. Non-standard scripts (bare
// multisig, OP_RETURN, raw pubkey, etc.) return KindUnknown and an empty
// address rather than an error — the caller treats them as unspendable
// by any tracked address.
func FromScriptPubKey(script []byte, network chain.Network) (string, Kind) {
	if isP2PKHScript(script) {
		var hash [20]byte
		copy(hash[:], script[3:23])
		addr, err := Encode(hash, KindP2PKH, network)
		if err != nil {
			return "", KindUnknown
		}
		return addr, KindP2PKH
	}
	if isP2SHScript(script) {
		var hash [20]byte
		copy(hash[:], script[2:22])
		addr, err := Encode(hash, KindP2SH, network)
		if err != nil {
			return "", KindUnknown
		}
		return addr, KindP2SH
	}
	return "", KindUnknown
}

// isP2PKHScript matches OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
func isP2PKHScript(script []byte) bool {
	return len(script) == 25 &&
		script[0] == 0x76 && // OP_DUP
		script[1] == 0xa9 && // OP_HASH160
		script[2] == 0x14 && // push 20
		script[23] == 0x88 && // OP_EQUALVERIFY
		script[24] == 0xac // OP_CHECKSIG
}

// isP2SHScript matches OP_HASH160 <20 bytes> OP_EQUAL.
func isP2SHScript(script []byte) bool {
	return len(script) == 23 &&
		script[0] == 0xa9 && // OP_HASH160
		script[1] == 0x14 && // push 20
		script[22] == 0x87 // OP_EQUAL
}
