package types

// VaultBucket names one of the three protocol-owned fee/tithe sinks
// (spec §3 "Vault Buckets").
type VaultBucket string

const (
	VaultMiners   VaultBucket = "miners"
	VaultDevOps   VaultBucket = "devops"
	VaultFounders VaultBucket = "founders"
)

var AllVaultBuckets = []VaultBucket{VaultMiners, VaultDevOps, VaultFounders}
