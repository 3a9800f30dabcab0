package pgxcasbin

import "errors"

// Adapter errors.
var (
	ErrInvalidFilterType = errors.New("invalid filter type")
	ErrRuleTooLong       = errors.New("rule length exceeds field count")
	ErrArgsTooLong       = errors.New("args length exceeds field count")
	ErrEmptyPtype        = errors.New("ptype is empty")
)

// Store errors wrap the underlying pgx failure.
var (
	ErrInsertRow   = errors.New("failed to insert row")
	ErrDeleteRow   = errors.New("failed to delete row")
	ErrDeleteWhere = errors.New("failed to delete where")
	ErrDeleteAll   = errors.New("failed to delete all rows")
	ErrSelectWhere = errors.New("failed to select where")
	ErrScanRow     = errors.New("failed to scan row")
	ErrBeginTx     = errors.New("failed to begin transaction")
	ErrCommitTx    = errors.New("failed to commit transaction")
	ErrRollbackTx  = errors.New("failed to rollback transaction")
	ErrBatchExec   = errors.New("failed to execute batch")
	ErrBatchClose  = errors.New("failed to close batch")
)

// Watcher errors.
var (
	ErrPingPool          = errors.New("failed to ping pool")
	ErrAcquireConn       = errors.New("failed to acquire connection")
	ErrListenChannel     = errors.New("failed to listen on channel")
	ErrWaitNotification  = errors.New("failed to wait for notification")
	ErrMarshalMessage    = errors.New("failed to marshal message")
	ErrNotifyMessage     = errors.New("failed to notify message")
	ErrUnknownUpdateType = errors.New("unknown update type")
)
