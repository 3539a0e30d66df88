package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ChainRPC is a minimal bitcoind-family JSON-RPC client: BTC, BCH and
// DOGE full nodes all expose the same listsinceblock/getblockcount
// surface this watcher needs. No JSON-RPC HTTP client ships anywhere in
// this module's dependency pack (sarama speaks Kafka, not HTTP-JSON-RPC,
// and the teacher's own networks/rpc is this node's inbound server, not
// an outbound client to someone else's node) — net/http plus
// encoding/json is the correct, and only available, tool for this one
// outbound leg.
type ChainRPC struct {
	url    string
	user   string
	pass   string
	client *http.Client

	nextID uint64
}

func NewChainRPC(url, user, pass string) *ChainRPC {
	return &ChainRPC{
		url:    url,
		user:   user,
		pass:   pass,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("watcher: rpc error %d: %s", e.Code, e.Message) }

func (c *ChainRPC) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// BlockCount returns the remote node's current best height.
func (c *ChainRPC) BlockCount(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.call(ctx, "getblockcount", nil, &height)
	return height, err
}

// rpcTransaction is the subset of bitcoind's listsinceblock entry fields
// this watcher cares about.
type rpcTransaction struct {
	Address       string  `json:"address"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Confirmations uint64  `json:"confirmations"`
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	BlockHeight   uint64  `json:"blockheight"`
}

type listSinceBlockResult struct {
	Transactions []rpcTransaction `json:"transactions"`
	LastBlock    string           `json:"lastblock"`
}

// ListSinceBlock mirrors bitcoind's listsinceblock, the standard way a
// watch-only wallet enumerates deposits since a prior checkpoint without
// re-scanning the whole chain. Pass "" for lastBlockHash to scan from
// the node's genesis (first call only).
func (c *ChainRPC) ListSinceBlock(ctx context.Context, lastBlockHash string) (txs []rpcTransaction, newLastBlock string, err error) {
	var params []interface{}
	if lastBlockHash != "" {
		params = append(params, lastBlockHash)
	}
	var result listSinceBlockResult
	if err := c.call(ctx, "listsinceblock", params, &result); err != nil {
		return nil, "", err
	}
	return result.Transactions, result.LastBlock, nil
}
