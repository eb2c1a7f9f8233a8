package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	PoolKey     ContextKey = "pool"
	TxKey       ContextKey = "tx"
	LoggerKey   ContextKey = "logger"
	TenantIDKey ContextKey = "tenantID"
)

// Validate is the shared validator instance. Struct tags are the single
// source of truth for DTO validation rules.
var Validate = validator.New(validator.WithRequiredStructEnabled())
