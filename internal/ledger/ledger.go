// Package ledger classifies installments for the credit notebook: stored
// status drives the summary buckets, the display status is derived at read time.
package ledger

import (
	"sort"
	"strings"

	"caderninho/backend/internal/calendar"
	"caderninho/backend/internal/domain"
)

// Display buckets accepted by FilterByDisplay.
const (
	FilterAll = "all"
)

// Summarize buckets installments by their stored status. Cancelled
// installments only count toward the total.
func Summarize(installments []domain.Installment) domain.LedgerSummary {
	var summary domain.LedgerSummary
	for _, inst := range installments {
		switch inst.Status {
		case domain.InstallmentPending:
			add(&summary.Pending, inst)
		case domain.InstallmentOverdue:
			add(&summary.Overdue, inst)
		case domain.InstallmentPaid:
			add(&summary.Paid, inst)
		}
		add(&summary.Total, inst)
	}
	return summary
}

func add(b *domain.Bucket, inst domain.Installment) {
	b.Count++
	b.Amount += inst.Amount
}

// DisplayStatus returns atrasado for a pendente installment whose due date is
// strictly before today, and the stored status otherwise.
func DisplayStatus(inst domain.Installment, today calendar.Date) domain.InstallmentStatus {
	if IsEffectivelyOverdue(inst, today) {
		return domain.InstallmentOverdue
	}
	return inst.Status
}

func IsEffectivelyOverdue(inst domain.Installment, today calendar.Date) bool {
	return inst.Status == domain.InstallmentPending && inst.DueDate.Before(today)
}

// Views attaches display status and customer names. The input slice is not
// modified.
func Views(installments []domain.Installment, today calendar.Date, customerNames map[string]string) []domain.InstallmentView {
	views := make([]domain.InstallmentView, 0, len(installments))
	for _, inst := range installments {
		views = append(views, domain.InstallmentView{
			Installment:        inst,
			CustomerName:       customerNames[inst.CustomerID],
			DisplayStatus:      DisplayStatus(inst, today),
			EffectivelyOverdue: IsEffectivelyOverdue(inst, today),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].DueDate.Equal(views[j].DueDate) {
			return views[i].DueDate.Before(views[j].DueDate)
		}
		if views[i].SaleID != views[j].SaleID {
			return views[i].SaleID < views[j].SaleID
		}
		return views[i].InstallmentNumber < views[j].InstallmentNumber
	})
	return views
}

// ParseFilter normalizes a display filter; ok is false for unknown values.
func ParseFilter(raw string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", FilterAll:
		return FilterAll, true
	case string(domain.InstallmentPending), string(domain.InstallmentOverdue),
		string(domain.InstallmentPaid), string(domain.InstallmentCancelled):
		return value, true
	default:
		return "", false
	}
}

// FilterByDisplay keeps views whose display status matches filter.
func FilterByDisplay(views []domain.InstallmentView, filter string) []domain.InstallmentView {
	if filter == "" || filter == FilterAll {
		return views
	}
	out := make([]domain.InstallmentView, 0, len(views))
	for _, v := range views {
		if string(v.DisplayStatus) == filter {
			out = append(out, v)
		}
	}
	return out
}

// CustomerBalances aggregates open installments per customer, largest overdue
// balance first.
func CustomerBalances(views []domain.InstallmentView) []domain.CustomerBalance {
	byCustomer := make(map[string]*domain.CustomerBalance)
	order := make([]string, 0)
	for _, v := range views {
		if v.CustomerID == "" || !v.Status.Payable() {
			continue
		}
		bal, ok := byCustomer[v.CustomerID]
		if !ok {
			bal = &domain.CustomerBalance{CustomerID: v.CustomerID, CustomerName: v.CustomerName}
			byCustomer[v.CustomerID] = bal
			order = append(order, v.CustomerID)
		}
		bal.OpenInstallments++
		bal.Outstanding += v.Amount
		if v.DisplayStatus == domain.InstallmentOverdue {
			bal.Overdue += v.Amount
		}
		if bal.NextDueDate == nil || v.DueDate.Before(*bal.NextDueDate) {
			due := v.DueDate
			bal.NextDueDate = &due
		}
	}

	out := make([]domain.CustomerBalance, 0, len(order))
	for _, id := range order {
		out = append(out, *byCustomer[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overdue != out[j].Overdue {
			return out[i].Overdue > out[j].Overdue
		}
		return out[i].CustomerName < out[j].CustomerName
	})
	return out
}
