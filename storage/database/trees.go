package database

// Tree names the storage keeps as independent key-prefixed namespaces
// (spec §4.1's "tree(name)"). Grounded on the teacher's own badgerTable/
// table key-prefix pattern in badger_database.go/leveldb_database.go,
// generalized from Klaytn's fixed chain-data partitions (headerDB,
// bodyDB, receiptsDB, ...) to the domain trees this chain's state machine
// actually needs.
type Tree string

const (
	TreeBlocks          Tree = "blocks"           // hash -> encoded Block
	TreeBlockByHeight    Tree = "block_by_height"  // height -> hash
	TreeTxs              Tree = "txs"              // tx hash -> encoded Transaction
	TreeReceipts         Tree = "receipts"         // block hash -> encoded []Receipt
	TreeBalances         Tree = "balances"         // (address, token) -> u128 balance
	TreeNonces           Tree = "nonces"           // address -> uint64 nonce
	TreeMempoolMeta      Tree = "mempool_meta"     // persisted mempool admission bookkeeping
	TreeLandOwners       Tree = "land_owners"      // validator/miner LAND stake index
	TreeOrders           Tree = "orders"           // order id -> encoded Order
	TreeHTLCs            Tree = "htlcs"            // htlc id -> encoded HTLC
	TreeTokenomics       Tree = "tokenomics"       // vault buckets + schema_version key
	TreePeers            Tree = "peers"            // peer id -> encoded PeerInfo
	TreeCheckpoints      Tree = "checkpoints"      // height -> encoded checkpoint
	TreeExternalDeposits Tree = "external_deposits" // (chain, txid, vout) -> encoded DepositCredit
	TreeLandStake        Tree = "land_stake"        // address -> u128 weight, backs epoch payout + governance weight
	TreeProposals        Tree = "proposals"          // proposal id -> encoded Proposal
	TreeWithdrawals      Tree = "withdrawals"        // withdrawal id -> encoded Withdrawal
)

// AllTrees lists every tree constant above; keep it in sync with them.
var AllTrees = []Tree{
	TreeBlocks, TreeBlockByHeight, TreeTxs, TreeReceipts, TreeBalances,
	TreeNonces, TreeMempoolMeta, TreeLandOwners, TreeOrders, TreeHTLCs,
	TreeTokenomics, TreePeers, TreeCheckpoints, TreeExternalDeposits,
	TreeLandStake, TreeProposals, TreeWithdrawals,
}

func treePrefix(t Tree) []byte {
	return append([]byte(t), ':')
}
