package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"settlement-service/internal/models"
)

// Result is a declared draw value normalized for matching.
type Result struct {
	Value string
	// Position is set when the draw is a single haruf digit; the digit only
	// occupies that side of the draw.
	Position models.HarufPosition
}

// DigitAt returns the result digit a haruf bet at pos compares against.
func (r Result) DigitAt(pos models.HarufPosition) (byte, bool) {
	if len(r.Value) == 0 {
		return 0, false
	}
	if len(r.Value) == 1 {
		if pos != r.Position {
			return 0, false
		}
		return r.Value[0], true
	}
	switch pos {
	case models.PositionFirst:
		return r.Value[0], true
	case models.PositionLast:
		return r.Value[len(r.Value)-1], true
	}
	return 0, false
}

// Matcher decides whether a bet of one type wins against a result.
type Matcher interface {
	ValidateBet(number string, position models.HarufPosition) error
	Match(bet models.Bet, result Result) bool
}

// CrossingPolicy defines the combinations a crossing result generates.
type CrossingPolicy interface {
	ValidResult(value string) bool
	ValidCombination(number string) bool
	Combinations(value string) map[string]struct{}
}

type JodiMatcher struct{}

func (JodiMatcher) ValidateBet(number string, _ models.HarufPosition) error {
	if !isDigits(number, 2) {
		return fmt.Errorf("%w: jodi number must be two digits 00-99, got %q", ErrInvalidBet, number)
	}
	return nil
}

func (JodiMatcher) Match(bet models.Bet, result Result) bool {
	return len(result.Value) == 2 && bet.Number == result.Value
}

type HarufMatcher struct{}

func (HarufMatcher) ValidateBet(number string, position models.HarufPosition) error {
	if !isDigits(number, 1) {
		return fmt.Errorf("%w: haruf number must be a single digit, got %q", ErrInvalidBet, number)
	}
	if position != models.PositionFirst && position != models.PositionLast {
		return fmt.Errorf("%w: haruf position must be first or last, got %q", ErrInvalidBet, position)
	}
	return nil
}

func (HarufMatcher) Match(bet models.Bet, result Result) bool {
	digit, ok := result.DigitAt(bet.Position)
	return ok && len(bet.Number) == 1 && bet.Number[0] == digit
}

type CrossingMatcher struct {
	Policy CrossingPolicy
}

func (m CrossingMatcher) ValidateBet(number string, _ models.HarufPosition) error {
	if !m.Policy.ValidCombination(number) {
		return fmt.Errorf("%w: %q is not a crossing combination", ErrInvalidBet, number)
	}
	return nil
}

func (m CrossingMatcher) Match(bet models.Bet, result Result) bool {
	_, ok := m.Policy.Combinations(result.Value)[bet.Number]
	return ok
}

// PairPermutations generates every ordered pair of two different positions of
// the result digits: "123" gives 12 13 21 23 31 32. With IncludeDoubles each
// digit also pairs with itself.
type PairPermutations struct {
	IncludeDoubles bool
}

const (
	minCrossingDigits = 2
	maxCrossingDigits = 5
)

// ValidResult accepts 2 to 5 distinct digits.
func (p PairPermutations) ValidResult(value string) bool {
	if len(value) < minCrossingDigits || len(value) > maxCrossingDigits || !isDigits(value, len(value)) {
		return false
	}
	seen := make(map[rune]bool, len(value))
	for _, r := range value {
		if seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

func (p PairPermutations) ValidCombination(number string) bool {
	if !isDigits(number, 2) {
		return false
	}
	return p.IncludeDoubles || number[0] != number[1]
}

func (p PairPermutations) Combinations(value string) map[string]struct{} {
	out := make(map[string]struct{})
	for i := 0; i < len(value); i++ {
		for j := 0; j < len(value); j++ {
			if i == j && !p.IncludeDoubles {
				continue
			}
			out[string([]byte{value[i], value[j]})] = struct{}{}
		}
	}
	return out
}

// MatcherRegistry maps bet types to their matching strategy.
type MatcherRegistry struct {
	matchers map[models.BetType]Matcher
	crossing CrossingPolicy
}

func NewMatcherRegistry(crossing CrossingPolicy) *MatcherRegistry {
	return &MatcherRegistry{
		matchers: map[models.BetType]Matcher{
			models.BetTypeJodi:     JodiMatcher{},
			models.BetTypeHaruf:    HarufMatcher{},
			models.BetTypeCrossing: CrossingMatcher{Policy: crossing},
		},
		crossing: crossing,
	}
}

func (r *MatcherRegistry) For(bt models.BetType) (Matcher, bool) {
	m, ok := r.matchers[bt]
	return m, ok
}

// ParseResult checks a declared value against the game's result shape.
func (r *MatcherRegistry) ParseResult(game models.Game, value string) (Result, error) {
	value = strings.TrimSpace(value)
	switch game.Type {
	case models.GameTypeJodi:
		if isDigits(value, 2) {
			return Result{Value: value}, nil
		}
		return Result{}, fmt.Errorf("%w: jodi result must be two digits 00-99, got %q", ErrInvalidResultShape, value)
	case models.GameTypeHaruf:
		if isDigits(value, 1) {
			pos := game.HarufPosition
			if pos == "" {
				pos = models.PositionLast
			}
			return Result{Value: value, Position: pos}, nil
		}
		return Result{}, fmt.Errorf("%w: haruf result must be one digit 0-9, got %q", ErrInvalidResultShape, value)
	case models.GameTypeCrossing:
		if r.crossing.ValidResult(value) {
			return Result{Value: value}, nil
		}
		return Result{}, fmt.Errorf("%w: %q is not a crossing result", ErrInvalidResultShape, value)
	}
	return Result{}, fmt.Errorf("%w: unknown game type %q", ErrInvalidResultShape, game.Type)
}

// CommissionPolicy computes the platform's cut for a settled game-day.
type CommissionPolicy interface {
	Commission(totalBetAmount, totalWinningAmount decimal.Decimal) decimal.Decimal
}

// RateCommission takes a fixed share of the amount staked.
type RateCommission struct {
	Rate decimal.Decimal
}

func (c RateCommission) Commission(totalBetAmount, _ decimal.Decimal) decimal.Decimal {
	return totalBetAmount.Mul(c.Rate).Round(2)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
