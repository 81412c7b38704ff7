package service

import "errors"

// 业务错误，handler 层通过 errors.Is 映射为 HTTP 状态码和错误码
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientFunds = errors.New("insufficient petals")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrAlreadyOwned      = errors.New("item already owned")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrBusy              = errors.New("too many concurrent requests, retry later")
	ErrBadSignature      = errors.New("invalid webhook signature")
)
