package reconcile

import (
	"context"
	"errors"
	"math"

	models "github.com/omotechhub-debug/OMOTECHY-sub004/models"
)

// Amounts are KES with at most two decimals; anything closer than a cent is
// the same amount.
const amountTolerance = 0.01

func amountsEqual(a, b float64) bool {
	return math.Abs(a-b) < amountTolerance
}

// MatchResult is the Matcher's verdict on a new transaction.
type MatchResult struct {
	// AutoMatch means exactly one candidate whose remaining balance equals
	// the paid amount; the workflow may connect it without admin review.
	AutoMatch bool
	// Candidate is the proposed order, nil when the transaction is
	// unmatched. Set together with AutoMatch=false for "plausible but needs
	// an admin".
	Candidate *models.Order
}

// Matcher proposes at most one candidate order for a payment notification.
// It never mutates anything; connecting is the Workflow's job.
type Matcher struct {
	Orders OrderStore
}

// Match applies the candidate policy:
//  1. An explicit order reference wins: exact amount -> auto-match,
//     otherwise that order becomes the pending candidate.
//  2. Otherwise search outstanding orders on the payer's phone. A single
//     order with remaining balance exactly equal to the amount auto-matches.
//     Two or more exact-balance orders are ambiguous; the oldest becomes the
//     pending candidate (deterministic, admin decides).
//  3. No exact-balance order: the most recent outstanding order becomes the
//     pending candidate.
//  4. Nothing outstanding on that phone: unmatched.
func (m *Matcher) Match(ctx context.Context, tx *models.PaymentTransaction) (MatchResult, error) {
	if tx.OrderReference != "" {
		order, err := m.Orders.FindOrderByNumber(ctx, tx.OrderReference)
		switch {
		case err == nil:
			if order.RemainingBalance > 0 && amountsEqual(tx.Amount, order.RemainingBalance) {
				return MatchResult{AutoMatch: true, Candidate: order}, nil
			}
			if order.RemainingBalance > 0 {
				return MatchResult{Candidate: order}, nil
			}
			// Referenced order already settled; fall back to phone search.
		case errors.Is(err, ErrNotFound):
			// Customers mistype references; fall back to phone search.
		default:
			return MatchResult{}, err
		}
	}

	candidates, err := m.Orders.FindCandidateOrders(ctx, tx.Phone)
	if err != nil {
		return MatchResult{}, err
	}
	if len(candidates) == 0 {
		return MatchResult{}, nil
	}

	var exact []models.Order
	for _, o := range candidates {
		if amountsEqual(tx.Amount, o.RemainingBalance) {
			exact = append(exact, o)
		}
	}

	switch {
	case len(exact) == 1:
		o := exact[0]
		return MatchResult{AutoMatch: true, Candidate: &o}, nil
	case len(exact) > 1:
		o := oldest(exact)
		return MatchResult{Candidate: &o}, nil
	default:
		o := newest(candidates)
		return MatchResult{Candidate: &o}, nil
	}
}

func oldest(orders []models.Order) models.Order {
	best := orders[0]
	for _, o := range orders[1:] {
		if o.CreatedAt.Before(best.CreatedAt) {
			best = o
		}
	}
	return best
}

func newest(orders []models.Order) models.Order {
	best := orders[0]
	for _, o := range orders[1:] {
		if o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	return best
}
