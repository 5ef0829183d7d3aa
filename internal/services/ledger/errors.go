package ledger

import "fmt"

// ErrorCode names a trade or wallet rejection. Codes are part of the HTTP contract.
type ErrorCode string

const (
	CodeInvalidSymbol      ErrorCode = "invalid_symbol"
	CodeInvalidPrice       ErrorCode = "invalid_price"
	CodeInvalidQuantity    ErrorCode = "invalid_quantity"
	CodeInvalidAction      ErrorCode = "invalid_action"
	CodeInvalidAmount      ErrorCode = "invalid_amount"
	CodeInsufficientFunds  ErrorCode = "insufficient_funds"
	CodeInsufficientShares ErrorCode = "insufficient_shares"
)

// TradeError is a rejected trade or wallet movement. Nothing is persisted
// when one is returned.
type TradeError struct {
	Code    ErrorCode
	Message string
}

func (e *TradeError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code so errors.Is(err, ErrInsufficientFunds) works for any message.
func (e *TradeError) Is(target error) bool {
	t, ok := target.(*TradeError)
	return ok && t.Code == e.Code
}

// IsValidation reports whether the error was raised before touching state.
func (e *TradeError) IsValidation() bool {
	switch e.Code {
	case CodeInsufficientFunds, CodeInsufficientShares:
		return false
	default:
		return true
	}
}

var (
	ErrInsufficientFunds  = &TradeError{Code: CodeInsufficientFunds}
	ErrInsufficientShares = &TradeError{Code: CodeInsufficientShares}
)

func newTradeError(code ErrorCode, format string, args ...any) *TradeError {
	return &TradeError{Code: code, Message: fmt.Sprintf(format, args...)}
}
