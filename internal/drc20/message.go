package drc20

import "encoding/json"

// message is the JSON body of a DRC-20 envelope, per spec.md §4.8.
// Amount-like fields are kept as json.Number so integers and decimal
// literals both parse without losing precision to a float64.
type message struct {
	Protocol string      `json:"p"`
	Op       string      `json:"op"`
	Tick     string      `json:"tick"`
	Max      json.Number `json:"max"`
	Limit    json.Number `json:"lim"`
	Decimals *uint8      `json:"dec"`
	Amount   json.Number `json:"amt"`
}

const protocolTag = "drc-20"

// parseMessage decodes an envelope body as a DRC-20 JSON message.
// Returns ok=false for non-DRC-20 or malformed payloads, which the
// updater silently ignores per spec.md §7 (malformed protocol payloads
// are never fatal).
func parseMessage(body []byte) (message, bool) {
	var m message
	if err := json.Unmarshal(body, &m); err != nil {
		return message{}, false
	}
	if m.Protocol != protocolTag {
		return message{}, false
	}
	return m, true
}
