package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidSignal        ErrorCode = 103
	ErrCodeInvalidQuantity      ErrorCode = 104
	ErrCodeInvalidPrice         ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataGap               ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeDataSourceUnavailable ErrorCode = 203

	// Cost model errors (300-399)
	ErrCodeUnknownCostModel ErrorCode = 300

	// Strategy errors (400-499)
	ErrCodeStrategyNotLoaded   ErrorCode = 400
	ErrCodeStrategyConfigError ErrorCode = 401
	ErrCodeStrategyFault       ErrorCode = 402

	// Trading errors (500-599)
	ErrCodeOrderRejected        ErrorCode = 500
	ErrCodeInsufficientFunds    ErrorCode = 501
	ErrCodePositionNotFound     ErrorCode = 502
	ErrCodeShortSellingDisabled ErrorCode = 503

	// Backtest errors (600-699). These are the fatal engine errors.
	ErrCodeNoStrategy           ErrorCode = 600
	ErrCodeRunInProgress        ErrorCode = 601
	ErrCodeEngineNotInitialized ErrorCode = 602
	ErrCodeStrategyFaultStorm   ErrorCode = 603
	ErrCodeLedgerInconsistent   ErrorCode = 604

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataWriteFailed ErrorCode = 701
)
