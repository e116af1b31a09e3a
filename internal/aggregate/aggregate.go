// Package aggregate computes per-shift sales summaries from stored
// receipts. The computation is a pure function of its inputs; feeding it
// the same receipt set in any order yields the same aggregate.
package aggregate

import (
	"slices"
	"strings"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/shiftclock"
)

// Category buckets for the sales breakdown. Items whose names match none
// of the keyword groups land in CategoryOther.
const (
	CategoryBurgers   = "BURGERS"
	CategoryChicken   = "CHICKEN"
	CategorySides     = "SIDES"
	CategoryBeverages = "BEVERAGES"
	CategoryOther     = "OTHER"
)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryBurgers, []string{"burger", "smash"}},
	{CategoryChicken, []string{"chicken", "nugget", "wing"}},
	{CategorySides, []string{"fries", "onion ring", "side"}},
	{CategoryBeverages, []string{"cola", "soda", "tea", "coffee", "juice", "water", "milkshake"}},
}

// CategorizeItem maps an item name to a sales category by case-insensitive
// substring match. The first matching group wins, in the order burgers,
// chicken, sides, beverages.
func CategorizeItem(name string) string {
	lower := strings.ToLower(name)
	for _, group := range categoryKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.category
			}
		}
	}
	return CategoryOther
}

// Compute builds the aggregate for one shift window from its receipts.
// Refund receipts carry negative totals and subtract from every rollup.
// Line items with a non-positive quantity on a sale receipt are skipped
// and counted in SkippedLines rather than poisoning the totals.
func Compute(window shiftclock.Window, receipts []domain.Receipt) domain.ShiftAggregate {
	agg := domain.ShiftAggregate{
		BusinessDate: window.Key(),
		WindowStart:  window.Start,
		WindowEnd:    window.End,
	}

	itemTotals := make(map[string]*domain.ItemSales)
	categoryTotals := make(map[string]*domain.CategorySales)
	modifierTotals := make(map[string]*domain.ModifierUsage)
	paymentTotals := make(map[string]*domain.PaymentSales)

	for _, receipt := range receipts {
		if !window.Contains(receipt.CreatedAt) {
			continue
		}

		sign := int64(1)
		if receipt.Type == domain.ReceiptTypeRefund {
			sign = -1
			agg.RefundCount++
		}

		agg.ReceiptCount++
		agg.TotalSalesCents += receipt.TotalCents
		// CashCents is already zero for receipts with no cash tender,
		// and negative for cash refunds.
		agg.CashSalesCents += receipt.CashCents

		method := receipt.PaymentMethod
		if method == "" {
			method = "unknown"
		}
		payment := paymentTotals[method]
		if payment == nil {
			payment = &domain.PaymentSales{PaymentMethod: method}
			paymentTotals[method] = payment
		}
		payment.Receipts++
		payment.TotalCents += receipt.TotalCents

		for _, line := range receipt.Items {
			if line.Quantity < 1 {
				agg.SkippedLines++
				continue
			}
			quantity := sign * int64(line.Quantity)
			revenue := sign * absInt64(line.TotalCents)

			category := CategorizeItem(line.Name)
			itemKey := line.Name + "\x00" + line.Variant
			item := itemTotals[itemKey]
			if item == nil {
				item = &domain.ItemSales{Name: line.Name, Variant: line.Variant, Category: category}
				itemTotals[itemKey] = item
			}
			item.Quantity += quantity
			item.RevenueCents += revenue

			cat := categoryTotals[category]
			if cat == nil {
				cat = &domain.CategorySales{Category: category}
				categoryTotals[category] = cat
			}
			cat.Quantity += quantity
			cat.RevenueCents += revenue

			for _, modifier := range line.Modifiers {
				modKey := modifier.Name + "\x00" + modifier.Option
				usage := modifierTotals[modKey]
				if usage == nil {
					usage = &domain.ModifierUsage{Name: modifier.Name, Option: modifier.Option}
					modifierTotals[modKey] = usage
				}
				usage.Count += quantity
				usage.RevenueCents += sign * int64(line.Quantity) * modifier.AdjustmentCents
			}
		}
	}

	agg.ItemsSold = make([]domain.ItemSales, 0, len(itemTotals))
	for _, item := range itemTotals {
		agg.ItemsSold = append(agg.ItemsSold, *item)
	}
	slices.SortFunc(agg.ItemsSold, func(a, b domain.ItemSales) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		if a.Name != b.Name {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Variant, b.Variant)
	})

	agg.Categories = make([]domain.CategorySales, 0, len(categoryTotals))
	for _, cat := range categoryTotals {
		agg.Categories = append(agg.Categories, *cat)
	}
	slices.SortFunc(agg.Categories, func(a, b domain.CategorySales) int {
		if a.RevenueCents != b.RevenueCents {
			if a.RevenueCents > b.RevenueCents {
				return -1
			}
			return 1
		}
		return cmpString(a.Category, b.Category)
	})

	agg.ModifiersUsed = make([]domain.ModifierUsage, 0, len(modifierTotals))
	for _, usage := range modifierTotals {
		agg.ModifiersUsed = append(agg.ModifiersUsed, *usage)
	}
	slices.SortFunc(agg.ModifiersUsed, func(a, b domain.ModifierUsage) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		if a.Name != b.Name {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Option, b.Option)
	})

	agg.ByPayment = make([]domain.PaymentSales, 0, len(paymentTotals))
	for _, payment := range paymentTotals {
		agg.ByPayment = append(agg.ByPayment, *payment)
	}
	slices.SortFunc(agg.ByPayment, func(a, b domain.PaymentSales) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	return agg
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
