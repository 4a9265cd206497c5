package schema

// DecisionAction is the category of an admission outcome.
type DecisionAction uint16

const (
	ActionUnknown DecisionAction = iota
	ActionAllow
	ActionBlock
	ActionEmergency
	ActionHalted
)

// String returns the wire name of the action.
func (a DecisionAction) String() string {
	switch a {
	case ActionAllow:
		return "ALLOW"
	case ActionBlock:
		return "BLOCK"
	case ActionEmergency:
		return "EMERGENCY"
	case ActionHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// DecisionReason is a coarse reason code for non-allowed decisions.
// Callers and tests branch on the code, never on message text.
type DecisionReason uint16

const (
	ReasonNone DecisionReason = iota
	ReasonMarginInsufficient
	ReasonLeverageExceeded
	ReasonLiquidationBuffer
	ReasonSymbolCapExceeded
	ReasonTotalExposureExceeded
	ReasonCircuitBreaker
	ReasonHalted
)

// String returns the wire name of the reason.
func (r DecisionReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMarginInsufficient:
		return "margin_insufficient"
	case ReasonLeverageExceeded:
		return "leverage_exceeded"
	case ReasonLiquidationBuffer:
		return "liquidation_buffer"
	case ReasonSymbolCapExceeded:
		return "symbol_cap_exceeded"
	case ReasonTotalExposureExceeded:
		return "total_exposure_exceeded"
	case ReasonCircuitBreaker:
		return "circuit_breaker"
	case ReasonHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Decision is the outcome of admitting one order.
type Decision struct {
	Action DecisionAction `json:"action"`
	Reason DecisionReason `json:"reason"`
}

// Allow is the zero-reason positive decision.
func Allow() Decision {
	return Decision{Action: ActionAllow}
}

// Block rejects one order without touching state.
func Block(reason DecisionReason) Decision {
	return Decision{Action: ActionBlock, Reason: reason}
}

// Emergency reports a circuit-breaker trip.
func Emergency(reason DecisionReason) Decision {
	return Decision{Action: ActionEmergency, Reason: reason}
}

// Halted reports that intake is stopped and nothing was evaluated.
func Halted() Decision {
	return Decision{Action: ActionHalted, Reason: ReasonHalted}
}

// Allowed reports whether the order may commit.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}
