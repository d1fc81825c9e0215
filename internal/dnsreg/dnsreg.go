// Package dnsreg implements the DNS name registry updater of spec.md
// §4.9: a first-seen "label.namespace" registry built directly on
// internal/kvstore's DNS tables, the same one-writer-per-block shape
// internal/drc20's Updater uses.
package dnsreg

import (
	"regexp"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dogeindex/dogeindexer/internal/chain"
	"github.com/dogeindex/dogeindexer/internal/kvstore"
)

// Namespaces is the fixed allow-list of spec.md §6.
var Namespaces = map[string]bool{
	"doge": true, "dogecoin": true, "shibe": true, "shib": true,
	"wow": true, "very": true, "such": true, "much": true,
	"excite": true, "woof": true, "bark": true, "tail": true,
	"paws": true, "paw": true, "moon": true, "kabosu": true,
	"cheems": true, "inu": true, "cook": true, "doggo": true,
	"boop": true, "zoomies": true, "smol": true, "snoot": true,
	"pupper": true, "official": true,
}

var namePattern = regexp.MustCompile(`^[^.]+\.[^.]+$`)

// Updater applies DNS registrations against a kvstore.Store within an
// already-open write transaction.
type Updater struct {
	store   *kvstore.Store
	network chain.Network
}

// New constructs an Updater.
func New(store *kvstore.Store, network chain.Network) *Updater {
	return &Updater{store: store, network: network}
}

// Register applies spec.md §4.9 for a single envelope body: if it
// parses as "label.namespace" with an allow-listed namespace and the
// name isn't already registered, it is stored with the given
// inscription identity. Address/Avatar/Reverse are left unset: like the
// original implementation (which sets `address: None // resolved
// dynamically from current satpoint`), resolving a name's current
// owning address means tracking the inscription's satpoint forward
// through every later transfer, a read-time lookup against the
// inscription's current location rather than a fact fixed at
// registration height. That lookup is part of the read/query API,
// which spec.md's Purpose section places out of scope.
func (u *Updater) Register(txn *badger.Txn, height, timestamp uint32, body []byte, id kvstore.InscriptionID, inscriptionNumber int64, associatedScript []byte) error {
	name := strings.TrimSpace(string(body))
	if !namePattern.MatchString(name) {
		return nil
	}

	namespace := name[strings.LastIndex(name, ".")+1:]
	if !Namespaces[namespace] {
		return nil
	}

	exists, err := u.store.HasDNSName(txn, name)
	if err != nil {
		return err
	}
	if exists {
		// First-seen wins: later registrations of the same name are ignored.
		return nil
	}

	entry := kvstore.DNSEntry{
		InscriptionID:     id,
		InscriptionNumber: inscriptionNumber,
		Height:            height,
		Timestamp:         timestamp,
	}
	if err := u.store.PutDNSName(txn, name, entry); err != nil {
		return err
	}
	return u.store.AddDNSNamespaceName(txn, namespace, name)
}
