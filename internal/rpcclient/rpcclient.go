// Package rpcclient is a narrow Dogecoin Core JSON-RPC client, rewritten
// from the teacher's internal/backend/jsonrpc.go: same request/response
// envelope, basic-auth handling, and error unwrapping, with the EVM
// branch removed and the Bitcoin-style method set narrowed to exactly
// what spec.md §6 names as the upstream block source's required
// methods.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a Dogecoin Core JSON-RPC client.
type Client struct {
	url        string
	user       string
	pass       string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// Config configures a Client.
type Config struct {
	URL     string
	User    string
	Pass    string
	Timeout time.Duration
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:  cfg.URL,
		user: cfg.User,
		pass: cfg.Pass,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetBlockCount returns the current chain tip height.
func (c *Client) GetBlockCount(ctx context.Context) (uint32, error) {
	result, err := c.call(ctx, "getblockcount", []interface{}{})
	if err != nil {
		return 0, err
	}
	var height uint32
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, fmt.Errorf("rpcclient: parse getblockcount: %w", err)
	}
	return height, nil
}

// GetBlockHash returns the block hash at height.
func (c *Client) GetBlockHash(ctx context.Context, height uint32) (string, error) {
	result, err := c.call(ctx, "getblockhash", []interface{}{height})
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", fmt.Errorf("rpcclient: parse getblockhash: %w", err)
	}
	return hash, nil
}

// GetBlockRaw returns the full block at hash as raw hex-encoded serialized
// bytes (verbosity 0), for feeding into internal/blkindex.DecodeBlock.
func (c *Client) GetBlockRaw(ctx context.Context, hash string) (string, error) {
	result, err := c.call(ctx, "getblock", []interface{}{hash, 0})
	if err != nil {
		return "", err
	}
	var hexBlock string
	if err := json.Unmarshal(result, &hexBlock); err != nil {
		return "", fmt.Errorf("rpcclient: parse getblock: %w", err)
	}
	return hexBlock, nil
}

// BlockHeader is the subset of getblockheader's verbose response this
// client needs.
type BlockHeader struct {
	Hash          string `json:"hash"`
	Height        uint32 `json:"height"`
	PreviousHash  string `json:"previousblockhash"`
	Time          int64  `json:"time"`
	Confirmations int64  `json:"confirmations"`
}

// GetBlockHeader returns the verbose block header at hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash string) (BlockHeader, error) {
	result, err := c.call(ctx, "getblockheader", []interface{}{hash, true})
	if err != nil {
		return BlockHeader{}, err
	}
	var header BlockHeader
	if err := json.Unmarshal(result, &header); err != nil {
		return BlockHeader{}, fmt.Errorf("rpcclient: parse getblockheader: %w", err)
	}
	return header, nil
}

// RawTransactionInfo is the subset of getrawtransaction's verbose
// response the prefetcher uses: the serialized transaction hex (whose
// outputs resolve spent-input values/scripts), plus its txid,
// confirming block hash and confirmation count.
type RawTransactionInfo struct {
	TxID        string `json:"txid"`
	Hex         string `json:"hex"`
	BlockHash   string `json:"blockhash"`
	Confirmations int64 `json:"confirmations"`
}

// GetRawTransactionInfo fetches a transaction's verbose info by txid,
// spec.md §6's `get_raw_transaction_info`.
func (c *Client) GetRawTransactionInfo(ctx context.Context, txid string) (RawTransactionInfo, error) {
	result, err := c.call(ctx, "getrawtransaction", []interface{}{txid, true})
	if err != nil {
		return RawTransactionInfo{}, err
	}
	var info RawTransactionInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return RawTransactionInfo{}, fmt.Errorf("rpcclient: parse getrawtransaction: %w", err)
	}
	return info, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("rpcclient: parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("%w: %d %s", ErrRPC, response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}
