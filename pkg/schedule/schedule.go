// Package schedule generates installment schedules for the two supported
// amortization methods and rebuilds them when loan terms change.
package schedule

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mplata/loantrack/pkg/calendar"
	"github.com/mplata/loantrack/pkg/models"
)

// ErrInvalidDuration is returned when a schedule is requested for fewer
// than one period.
var ErrInvalidDuration = errors.New("duration must be at least 1 period")

// ErrInvalidPrincipal is returned when the principal is not positive.
var ErrInvalidPrincipal = errors.New("principal must be positive")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// Remaining balances smaller than this are treated as zero to
	// suppress negative-zero artifacts from floating drift.
	epsilon = decimal.NewFromFloat(0.01)
)

// Params are the loan terms a schedule is generated from.
type Params struct {
	Principal    decimal.Decimal
	RateOrAmount decimal.Decimal
	InterestMode models.InterestMode
	Frequency    models.Frequency
	Duration     int
	Method       models.AmortizationMethod
	StartDate    time.Time

	// RateOverrides optionally changes the active rate (or fixed
	// amount) starting at the keyed installment, inclusive.
	RateOverrides models.RateOverrides
}

// Generate produces the ordered installment list for the given terms.
// All installments are emitted pending. A zero rate is a valid input,
// not an error.
func Generate(p Params) ([]models.Installment, error) {
	if p.Duration < 1 {
		return nil, ErrInvalidDuration
	}
	if !p.Principal.IsPositive() {
		return nil, ErrInvalidPrincipal
	}

	// A flat fixed-interest loan has no annuity formula, so the
	// French method degrades to simple amortization in that mode.
	if p.Method == models.MethodFrench && p.InterestMode == models.InterestPercentage {
		return generateFrench(p), nil
	}
	return generateSimple(p), nil
}

// generateSimple divides capital evenly across the term and spreads
// interest flat per installment. Rate overrides swap the active rate
// from their installment onward; the divisor stays the full duration.
func generateSimple(p Params) []models.Installment {
	duration := decimal.NewFromInt(int64(p.Duration))
	capitalPer := p.Principal.Div(duration)
	active := p.RateOrAmount

	installments := make([]models.Installment, 0, p.Duration)
	for i := 1; i <= p.Duration; i++ {
		if next, ok := p.RateOverrides[i]; ok {
			active = next
		}

		var interest decimal.Decimal
		if p.InterestMode == models.InterestFixed {
			interest = active.Div(duration)
		} else {
			interest = p.Principal.Mul(active).Div(hundred).Div(duration)
		}

		installments = append(installments, models.Installment{
			Number:          i,
			DueDate:         calendar.Advance(p.StartDate, p.Frequency, i),
			TotalAmount:     capitalPer.Add(interest),
			CapitalPortion:  capitalPer,
			InterestPortion: interest,
			Status:          models.InstallmentPending,
		})
	}
	return installments
}

// generateFrench amortizes against the declining balance with a constant
// payment derived from the annuity formula. Every rate override triggers
// re-amortization: the payment is re-derived from the remaining balance
// and the count of remaining terms, not the original term.
func generateFrench(p Params) []models.Installment {
	remaining := p.Principal
	rate := p.RateOrAmount.Div(hundred)
	var pmt decimal.Decimal

	installments := make([]models.Installment, 0, p.Duration)
	for k := 1; k <= p.Duration; k++ {
		reamortize := k == 1
		if next, ok := p.RateOverrides[k]; ok {
			rate = next.Div(hundred)
			reamortize = true
		}
		if reamortize {
			pmt = annuityPayment(remaining, rate, p.Duration-k+1)
		}

		interest := remaining.Mul(rate)
		capital := pmt.Sub(interest)
		total := pmt
		if k == p.Duration {
			// Force the balance to land exactly on zero despite
			// accumulated floating drift.
			capital = remaining
			total = capital.Add(interest)
		}

		remaining = remaining.Sub(capital)
		if remaining.LessThan(epsilon) {
			remaining = decimal.Zero
		}

		installments = append(installments, models.Installment{
			Number:          k,
			DueDate:         calendar.Advance(p.StartDate, p.Frequency, k),
			TotalAmount:     total,
			CapitalPortion:  capital,
			InterestPortion: interest,
			Status:          models.InstallmentPending,
		})
	}
	return installments
}

// annuityPayment returns the constant per-period payment that amortizes
// balance over terms periods at the given per-period rate:
// pmt = balance * i(1+i)^n / ((1+i)^n - 1), or balance/n when i = 0.
func annuityPayment(balance, rate decimal.Decimal, terms int) decimal.Decimal {
	n := decimal.NewFromInt(int64(terms))
	if rate.IsZero() {
		return balance.Div(n)
	}
	pow := one.Add(rate).Pow(n)
	return balance.Mul(rate).Mul(pow).Div(pow.Sub(one))
}

// Regenerate rebuilds a loan's schedule from new terms, replacing the
// installment list wholesale. Paid installments from the previous
// schedule are carried forward by position: the new amount for that
// position wins, only the fact of payment and its date survive. This is
// a deliberate rewrite-of-history policy, not an accident.
func Regenerate(previous []models.Installment, p Params) ([]models.Installment, error) {
	fresh, err := Generate(p)
	if err != nil {
		return nil, err
	}

	paidByNumber := make(map[int]*models.Installment, len(previous))
	for i := range previous {
		if previous[i].Status == models.InstallmentPaid {
			paidByNumber[previous[i].Number] = &previous[i]
		}
	}
	for i := range fresh {
		if old, ok := paidByNumber[fresh[i].Number]; ok {
			fresh[i].Status = models.InstallmentPaid
			fresh[i].PaymentDate = old.PaymentDate
		}
	}
	return fresh, nil
}
