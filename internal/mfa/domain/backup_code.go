package domain

import "time"

// BackupCode is a single-use MFA recovery credential. Only the digest of the
// code is stored; consumption sets the flag once and the row is kept so the
// audit trail of its use survives.
type BackupCode struct {
	ID         string
	AccountID  string
	CodeDigest string
	Consumed   bool
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
