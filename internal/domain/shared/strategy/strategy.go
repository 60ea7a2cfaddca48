package strategy

// StrategyType represents the type of strategy
type StrategyType string

const (
	// StrategyTypeAllocation distributes an amount over open items
	StrategyTypeAllocation StrategyType = "allocation"
	// StrategyTypeAdvance selects which advance sources fund a payment
	StrategyTypeAdvance StrategyType = "advance"
)

// String returns the string representation of the strategy type
func (t StrategyType) String() string {
	return string(t)
}

// IsValid returns true if the strategy type is valid
func (t StrategyType) IsValid() bool {
	switch t {
	case StrategyTypeAllocation, StrategyTypeAdvance:
		return true
	default:
		return false
	}
}

// Strategy is the base interface for all strategies
type Strategy interface {
	Name() string
	Type() StrategyType
	Description() string
}

// BaseStrategy provides common implementation for strategies
type BaseStrategy struct {
	name         string
	strategyType StrategyType
	description  string
}

// NewBaseStrategy creates a new BaseStrategy
func NewBaseStrategy(name string, strategyType StrategyType, description string) BaseStrategy {
	return BaseStrategy{
		name:         name,
		strategyType: strategyType,
		description:  description,
	}
}

// Name returns the strategy name
func (s BaseStrategy) Name() string {
	return s.name
}

// Type returns the strategy type
func (s BaseStrategy) Type() StrategyType {
	return s.strategyType
}

// Description returns the strategy description
func (s BaseStrategy) Description() string {
	return s.description
}
