package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
)

func TestBridge_ConsumeAndDrainConfirmed(t *testing.T) {
	b := NewBridge()
	broker := NewMemoryBroker(8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Consume(ctx, broker)

	txid := common.BytesToHash([]byte("tx-1"))
	require.NoError(t, broker.Publish(DepositEvent{Chain: common.ChainBTC, TxID: txid, Vout: 0, Confirmations: 1}))
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)

	// Below the per-chain default confirmation depth: nothing drains yet.
	drained := b.DrainConfirmed(nil)
	require.Empty(t, drained)
	require.Equal(t, 1, b.Pending())

	// An explicit override lets a caller (e.g. a test network) drain early.
	drained = b.DrainConfirmed(map[common.ExternalChain]uint64{common.ChainBTC: 1})
	require.Len(t, drained, 1)
	require.Equal(t, 0, b.Pending())
}

func TestBridge_IngestIgnoresRegressingConfirmationCounts(t *testing.T) {
	b := NewBridge()
	txid := common.BytesToHash([]byte("tx-2"))
	key := DepositEvent{Chain: common.ChainBTC, TxID: txid, Vout: 0}

	high := key
	high.Confirmations = 5
	b.ingest(high)

	low := key
	low.Confirmations = 1
	b.ingest(low)

	drained := b.DrainConfirmed(map[common.ExternalChain]uint64{common.ChainBTC: 5})
	require.Len(t, drained, 1)
	require.Equal(t, uint64(5), drained[0].Confirmations)
}

func TestToPendingDeposits_CarriesEventFieldsIntoDepositCredit(t *testing.T) {
	recipient := common.BytesToAddress([]byte("carol"))
	ev := DepositEvent{
		Chain:         common.ChainDOGE,
		TxID:          common.BytesToHash([]byte("tx-3")),
		Vout:          2,
		Recipient:     recipient,
		Amount:        42,
		Confirmations: 60,
	}

	deposits := ToPendingDeposits([]DepositEvent{ev})
	require.Len(t, deposits, 1)
	credit := deposits[0].Credit
	require.Equal(t, recipient, credit.Recipient)
	require.Equal(t, uint64(42), credit.Amount)
	require.True(t, credit.Ready(), "60 confirmations must clear DOGE's confirmation depth")
}
