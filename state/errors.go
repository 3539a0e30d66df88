package state

import "errors"

var (
	ErrNegativeBalance      = errors.New("state: balance would go negative")
	ErrBadParent            = errors.New("state: parent block not found")
	ErrTimestampOutOfRange  = errors.New("state: timestamp outside allowed future skew")
	ErrBadDifficulty        = errors.New("state: difficulty does not match retarget schedule")
	ErrPoWBelowTarget       = errors.New("state: pow hash does not meet difficulty target")
	ErrRootMismatch         = errors.New("state: computed root does not match header")
	ErrBadNonce             = errors.New("state: transaction nonce mismatch")
	ErrBadSignature         = errors.New("state: transaction signature invalid")
	ErrLaneQuotaExceeded    = errors.New("state: lane quota exceeded")
	ErrUnknownMethod        = errors.New("state: unknown (module, method) dispatch pair")
	ErrUnauthorized         = errors.New("state: caller not authorized for this method")
	ErrOverflow             = errors.New("state: arithmetic overflow")
	ErrZeroSizeOrZeroPrice  = errors.New("state: zero-sized or zero-priced order")
	ErrPostOnlyWouldCross   = errors.New("state: post-only order would cross the book")
	ErrHTLCInvalidState     = errors.New("state: htlc not in expected state")
	ErrHTLCTimelockPending  = errors.New("state: htlc timelock not yet reached")
	ErrHTLCBadPreimage      = errors.New("state: htlc preimage does not match hashlock")
)
