package store

import "codeberg.org/mutker/cyclewatch/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("store_invalid_config")
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")

	// Storage errors
	ErrStorageInit      = errors.ErrorCode("store_init_failed")
	ErrStorageAccess    = errors.ErrorCode("store_access_failed")
	ErrStorageClose     = errors.ErrorCode("store_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaMismatch   = errors.ErrorCode("store_schema_version_mismatch")
)
