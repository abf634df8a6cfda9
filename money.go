package aggregator

import "math/big"

// Money is an exact, currency-tagged amount. Arithmetic across mismatched
// currencies is rejected rather than silently coerced.
type Money struct {
	amount   *big.Rat
	currency string
}

// NewMoney builds a Money from amount in currency. amount must be
// non-negative; currency must be non-empty.
func NewMoney(amount *big.Rat, currency string) (Money, error) {
	if amount == nil {
		return Money{}, NewInvalidInput("amount", "must not be nil")
	}
	if amount.Sign() < 0 {
		return Money{}, NewInvalidInput("amount", "must be non-negative")
	}
	if currency == "" {
		return Money{}, NewInvalidInput("currency", "must not be empty")
	}
	return Money{amount: new(big.Rat).Set(amount), currency: currency}, nil
}

// ZeroMoney returns a zero-valued Money in currency.
func ZeroMoney(currency string) Money {
	m, _ := NewMoney(new(big.Rat), currency)
	return m
}

func (m Money) Amount() *big.Rat { return new(big.Rat).Set(m.amount) }

func (m Money) Currency() string { return m.currency }

func (m Money) IsZero() bool { return m.amount == nil || m.amount.Sign() == 0 }

// Add returns m + other. Both must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, NewInvalidInput("currency", "cannot add mismatched currencies "+m.currency+" and "+other.currency)
	}
	sum := new(big.Rat).Add(m.amount, other.amount)
	return NewMoney(sum, m.currency)
}

// Sub returns m - other. Rejects a negative result.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, NewInvalidInput("currency", "cannot subtract mismatched currencies "+m.currency+" and "+other.currency)
	}
	diff := new(big.Rat).Sub(m.amount, other.amount)
	return NewMoney(diff, m.currency)
}

// Mul scales m by a non-negative factor.
func (m Money) Mul(factor *big.Rat) (Money, error) {
	if factor == nil || factor.Sign() < 0 {
		return Money{}, NewInvalidInput("factor", "must be non-negative")
	}
	product := new(big.Rat).Mul(m.amount, factor)
	return NewMoney(product, m.currency)
}

// FloatString renders the amount with prec digits after the decimal point.
func (m Money) FloatString(prec int) string {
	if m.amount == nil {
		return "0"
	}
	return m.amount.FloatString(prec)
}
