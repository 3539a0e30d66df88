package watcher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
)

// recordingBroker is a Broker test double that records every published
// event rather than routing it anywhere.
type recordingBroker struct {
	mu     sync.Mutex
	events []DepositEvent
}

func (b *recordingBroker) Publish(ev DepositEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}
func (b *recordingBroker) Subscribe() <-chan DepositEvent { return nil }
func (b *recordingBroker) Close() error                   { return nil }

func (b *recordingBroker) snapshot() []DepositEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DepositEvent, len(b.events))
	copy(out, b.events)
	return out
}

func TestRPCWatcher_PollOnce_PublishesOnlyRecognizedAddresses(t *testing.T) {
	book := NewAddressBook([]byte("seed"))
	recipient := common.BytesToAddress([]byte("alice"))
	hash160 := book.Derive(common.ChainBTC, recipient, 0)
	watchedAddr := base58.CheckEncode(hash160[:], 0x00)
	strangerAddr := base58.CheckEncode(make([]byte, 20), 0x00) // a valid but unwatched address

	validTxid := make([]byte, common.HashLength)
	for i := range validTxid {
		validTxid[i] = byte(i)
	}
	validTxidHex := hex.EncodeToString(validTxid)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := listSinceBlockResult{
			Transactions: []rpcTransaction{
				{Address: watchedAddr, Category: "receive", Amount: 1.5, Confirmations: 1, TxID: validTxidHex, Vout: 0, BlockHeight: 10},
				{Address: strangerAddr, Category: "receive", Amount: 2, Confirmations: 1, TxID: validTxidHex, Vout: 1, BlockHeight: 10},
			},
			LastBlock: "tip",
		}
		raw, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: raw})
	}))
	defer srv.Close()

	broker := &recordingBroker{}
	w := NewRPCWatcher(PollConfig{Chain: common.ChainBTC, RPCURL: srv.URL}, book, broker)
	require.NoError(t, w.pollOnce(context.Background()))

	events := broker.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, recipient, events[0].Recipient)
	require.Equal(t, uint64(150000000), events[0].Amount)
	require.Equal(t, "tip", w.lastBlockHash)
}
