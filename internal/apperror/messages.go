package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Upstream client errors
	CodeUpstreamConnectionFailed: "Failed to connect to upstream feed",
	CodeUpstreamSubscribeFailed:  "Failed to subscribe to account channel",
	CodeUpstreamPingFailed:       "Upstream liveness ping failed",
	CodeUpstreamClosed:          "Upstream session closed",

	// Event router errors
	CodeFrameParse:     "Failed to parse raw frame",
	CodeAccountUnknown: "Account is not in the watched set",
	CodeEventDuplicate: "Event fingerprint seen within dedup window",

	// Classifier errors
	CodeThresholdOrderInvalid: "Size class thresholds are not strictly descending",

	// Rules engine errors
	CodeRuleEvaluation:   "Custom rule predicate failed",
	CodeRuleNotFound:     "Rule not found",
	CodeUnknownCondition: "Unknown rule condition",

	// Dispatcher errors
	CodeDispatchTransient: "Dispatch send failed, will retry",
	CodeDispatchTerminal:  "Dispatch send failed permanently",
	CodeChannelDisabled:   "Channel is disabled",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
