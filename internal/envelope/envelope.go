// Package envelope extracts inscription envelopes from a transaction
// input's signature script, following spec.md §4.6's opcode grammar.
// Dogecoin has no segregated witness, so unlike the ordinals protocol
// this scans the legacy scriptSig rather than witness data; the tag
// grammar and cursed-classification rules are otherwise unchanged.
//
// Grounded on the teacher's own txscript.MakeScriptTokenizer usage in
// internal/swap/htlc_script.go's ParseHTLCScript: tokenize, advance with
// Next(), branch on Opcode(), read pushed bytes with Data().
package envelope

import (
	"github.com/btcsuite/btcd/txscript"
)

// Field tags, matching the ordinals-derived envelope grammar. Odd tags
// are safe to ignore when unrecognized; an unrecognized even tag is a
// cursed-classification trigger.
const (
	tagBody            = 0
	tagContentType     = 1
	tagPointer         = 2
	tagParent          = 3
	tagMetadata        = 5
	tagMetaprotocol    = 7
	tagContentEncoding = 9
	tagDelegate        = 11
)

// envelopeMarker is the protocol tag pushed immediately after the
// OP_FALSE OP_IF envelope start, identifying this as an inscription
// envelope as opposed to any other OP_IF-guarded script fragment.
var envelopeMarker = []byte("ord")

// Envelope is one parsed inscription envelope, located by the input and
// envelope position it was found at within a transaction, per spec.md
// §4.6.
type Envelope struct {
	InputIndex    int
	EnvelopeIndex int

	ContentType  string
	Metaprotocol string
	Parents      [][]byte // raw parent reference bytes, txid+index encoded
	Pointer      *uint64
	Body         []byte

	// Cursed is true when this envelope violates one of spec.md §4.6's
	// validation rules but is still indexed (negative inscription
	// number) rather than discarded.
	Cursed      bool
	CurseReason string
}

// ParseInput scans a single transaction input's signature script for
// inscription envelopes, returning them in the order they occur. Each
// returned Envelope's EnvelopeIndex is its position within this input
// only; the inscription updater renumbers across the whole transaction.
//
// height and jubileeHeight implement spec.md:96's fourth cursed trigger:
// once height reaches jubileeHeight, a second (or later) envelope found
// in the same input is cursed as "multiple_envelopes_after_height" - the
// same threshold the original calls jubilee_height, which on Dogecoin is
// just first_inscription_height (chain.rs has no separate jubilee era).
func ParseInput(scriptSig []byte, height, jubileeHeight uint32) []Envelope {
	var envelopes []Envelope
	tokenizer := txscript.MakeScriptTokenizer(0, scriptSig)
	envIndex := 0

	for tokenizer.Next() {
		if tokenizer.Opcode() != txscript.OP_FALSE {
			continue
		}
		if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_IF {
			continue
		}

		env, ok := parseEnvelopeBody(&tokenizer)
		if !ok {
			continue
		}
		env.EnvelopeIndex = envIndex
		envIndex++
		if envIndex > 1 && height >= jubileeHeight {
			env.Cursed = true
			env.CurseReason = "multiple_envelopes_after_height"
		}
		envelopes = append(envelopes, env)
	}

	return envelopes
}

// parseEnvelopeBody consumes tokens after OP_FALSE OP_IF has already
// been seen, up to and including the matching OP_ENDIF, and builds the
// Envelope. Returns ok=false if the marker push isn't the expected
// protocol tag (in which case this OP_IF wasn't an inscription
// envelope at all and the caller should keep scanning).
func parseEnvelopeBody(tokenizer *txscript.ScriptTokenizer) (Envelope, bool) {
	if !tokenizer.Next() {
		return Envelope{}, false
	}
	marker := tokenizer.Data()
	if string(marker) != string(envelopeMarker) {
		return Envelope{}, false
	}

	env := Envelope{}
	var bodyChunks [][]byte
	stutterSeen := false

	for tokenizer.Next() {
		op := tokenizer.Opcode()
		if op == txscript.OP_ENDIF {
			break
		}

		tagOp := op
		tagData := tokenizer.Data()
		pushnumMisuse := false
		var tag int
		if txscript.IsSmallInt(tagOp) {
			tag = int(txscript.AsSmallInt(tagOp))
			pushnumMisuse = true
		} else if len(tagData) == 1 {
			tag = int(tagData[0])
		} else if len(tagData) == 0 {
			// Bare opcode with no associated data and not a small int:
			// not a valid tag byte, treat the envelope as malformed and
			// stop scanning this one.
			break
		} else {
			// A multi-byte push where a single tag byte was expected:
			// only valid immediately after the marker as a duplicated
			// marker push (stutter).
			if string(tagData) == string(envelopeMarker) {
				stutterSeen = true
				continue
			}
			break
		}

		if pushnumMisuse {
			env.Cursed = true
			env.CurseReason = "pushnum_opcode_misuse"
		}

		if tag == tagBody {
			// Everything remaining up to OP_ENDIF is body content,
			// chunked across however many pushes the inscribing
			// transaction used; no further tags follow the body tag.
			for tokenizer.Next() {
				if tokenizer.Opcode() == txscript.OP_ENDIF {
					return finishEnvelope(env, bodyChunks, stutterSeen), true
				}
				bodyChunks = append(bodyChunks, tokenizer.Data())
			}
			break
		}

		if !tokenizer.Next() {
			break
		}
		value := tokenizer.Data()

		switch tag {
		case tagContentType:
			env.ContentType = string(value)
		case tagMetaprotocol:
			env.Metaprotocol = string(value)
		case tagParent:
			env.Parents = append(env.Parents, append([]byte(nil), value...))
		case tagPointer:
			v := bytesToUint64LE(value)
			env.Pointer = &v
		case tagMetadata, tagContentEncoding, tagDelegate:
			// Recognized odd/even tags this indexer doesn't act on
			// beyond accepting their presence; no cursed trigger.
		default:
			if tag%2 == 0 {
				env.Cursed = true
				env.CurseReason = "unrecognized_even_tag"
			}
		}
	}

	return finishEnvelope(env, bodyChunks, stutterSeen), true
}

// finishEnvelope applies the stutter-curse check and flattens the
// collected body chunks into a single buffer.
func finishEnvelope(env Envelope, bodyChunks [][]byte, stutterSeen bool) Envelope {
	if stutterSeen {
		env.Cursed = true
		env.CurseReason = "stutter"
	}

	if len(bodyChunks) > 0 {
		var total int
		for _, c := range bodyChunks {
			total += len(c)
		}
		body := make([]byte, 0, total)
		for _, c := range bodyChunks {
			body = append(body, c...)
		}
		env.Body = body
	}

	return env
}

func bytesToUint64LE(b []byte) uint64 {
	var v uint64
	for i, by := range b {
		if i >= 8 {
			break
		}
		v |= uint64(by) << (8 * i)
	}
	return v
}
