package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainRPC_ListSinceBlock_ParsesTransactionsAndCheckspoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "listsinceblock", req.Method)

		result := listSinceBlockResult{
			Transactions: []rpcTransaction{
				{Address: "addr1", Category: "receive", Amount: 0.5, Confirmations: 2, TxID: "aa", Vout: 0, BlockHeight: 100},
			},
			LastBlock: "blockhash-100",
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(w).Encode(rpcResponse{Result: raw}))
	}))
	defer srv.Close()

	c := NewChainRPC(srv.URL, "", "")
	txs, last, err := c.ListSinceBlock(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "blockhash-100", last)
	require.Len(t, txs, 1)
	require.Equal(t, "addr1", txs[0].Address)
}

func TestChainRPC_PropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -1, Message: "boom"}}))
	}))
	defer srv.Close()

	c := NewChainRPC(srv.URL, "", "")
	_, _, err := c.ListSinceBlock(context.Background(), "")
	require.Error(t, err)
}

func TestChainRPC_BlockCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(rpcResponse{Result: json.RawMessage("123")}))
	}))
	defer srv.Close()

	c := NewChainRPC(srv.URL, "", "")
	height, err := c.BlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(123), height)
}
