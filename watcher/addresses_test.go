package watcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
)

func TestAddressBook_DeriveIsDeterministic(t *testing.T) {
	book := NewAddressBook([]byte("master-seed"))
	recipient := common.BytesToAddress([]byte("alice"))

	h1 := book.Derive(common.ChainBTC, recipient, 0)
	h2 := book.Derive(common.ChainBTC, recipient, 0)
	require.Equal(t, h1, h2)

	other := book.Derive(common.ChainBTC, recipient, 1)
	require.NotEqual(t, h1, other)
}

func TestAddressBook_DeriveIsPerChain(t *testing.T) {
	book := NewAddressBook([]byte("master-seed"))
	recipient := common.BytesToAddress([]byte("alice"))

	btc := book.Derive(common.ChainBTC, recipient, 0)
	doge := book.Derive(common.ChainDOGE, recipient, 0)
	require.NotEqual(t, btc, doge)

	_, ok := book.Lookup(common.ChainDOGE, btc)
	require.False(t, ok, "a BTC hash160 must not resolve under the DOGE namespace")
}

func TestAddressBook_LookupFindsDerivedRecipient(t *testing.T) {
	book := NewAddressBook([]byte("master-seed"))
	recipient := common.BytesToAddress([]byte("bob"))

	h := book.Derive(common.ChainBTC, recipient, 3)
	got, ok := book.Lookup(common.ChainBTC, h)
	require.True(t, ok)
	require.Equal(t, recipient, got)

	_, ok = book.Lookup(common.ChainBTC, [20]byte{0xff})
	require.False(t, ok)
}

func TestAddressBook_RecognizeRejectsUnsupportedChain(t *testing.T) {
	book := NewAddressBook([]byte("master-seed"))
	_, _, err := book.Recognize(common.ExternalChain("ETH"), "anything")
	require.Error(t, err)
}
