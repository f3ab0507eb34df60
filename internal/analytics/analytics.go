// Package analytics derives read-only views from a workspace snapshot.
// Every function is pure: identical inputs give identical outputs.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"talentlink/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is a consistent read of one workspace.
type Snapshot struct {
	Workspace domain.Workspace
	Tasks     []domain.Task
	Payments  []domain.Payment
	Now       time.Time
}

// TaskCounts partitions the task set: every task lands in exactly one of
// Completed, Pending or Overdue.
type TaskCounts struct {
	Total      int `json:"total_tasks"`
	Completed  int `json:"completed_tasks"`
	Pending    int `json:"pending_tasks"`
	Overdue    int `json:"overdue_tasks"`
	Todo       int `json:"todo_tasks"`
	InProgress int `json:"in_progress_tasks"`
}

func CountTasks(tasks []domain.Task, now time.Time) TaskCounts {
	var c TaskCounts
	for _, t := range tasks {
		c.Total++
		switch t.EffectiveStatus(now) {
		case domain.TaskCompleted:
			c.Completed++
		case domain.TaskOverdue:
			c.Overdue++
		case domain.TaskInProgress:
			c.Pending++
			c.InProgress++
		default:
			c.Pending++
			c.Todo++
		}
	}
	return c
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// StatusDistribution lists every effective status in a fixed order, including zero buckets.
func StatusDistribution(tasks []domain.Task, now time.Time) []StatusCount {
	c := CountTasks(tasks, now)
	return []StatusCount{
		{Status: domain.TaskTodo, Count: c.Todo},
		{Status: domain.TaskInProgress, Count: c.InProgress},
		{Status: domain.TaskCompleted, Count: c.Completed},
		{Status: domain.TaskOverdue, Count: c.Overdue},
	}
}

type CompletionPoint struct {
	Date       string `json:"date"`
	Completed  int    `json:"completed"`
	Cumulative int    `json:"cumulative"`
}

// CompletionTimeline groups completed tasks by completion date with a running total.
func CompletionTimeline(tasks []domain.Task) []CompletionPoint {
	perDay := map[string]int{}
	for _, t := range tasks {
		if t.Status != domain.TaskCompleted || t.CompletedAt == nil {
			continue
		}
		ts, err := domain.ParseTime(*t.CompletedAt)
		if err != nil {
			continue
		}
		perDay[ts.UTC().Format(time.DateOnly)]++
	}
	days := make([]string, 0, len(perDay))
	for d := range perDay {
		days = append(days, d)
	}
	sort.Strings(days)
	points := make([]CompletionPoint, 0, len(days))
	running := 0
	for _, d := range days {
		running += perDay[d]
		points = append(points, CompletionPoint{Date: d, Completed: perDay[d], Cumulative: running})
	}
	return points
}

type PaymentPoint struct {
	PaymentID   string          `json:"payment_id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Cumulative  decimal.Decimal `json:"cumulative"`
	Description string          `json:"description,omitempty"`
}

type PaymentStats struct {
	Total        decimal.Decimal `json:"total_amount"`
	Paid         decimal.Decimal `json:"paid_amount"`
	Remaining    decimal.Decimal `json:"remaining_amount"`
	Unconfirmed  decimal.Decimal `json:"unconfirmed_amount"`
	Percentage   decimal.Decimal `json:"payment_percentage"`
	PaymentCount int             `json:"payment_count"`
	PendingCount int             `json:"pending_count"`
	Overpaid     bool            `json:"overpaid"`
	Timeline     []PaymentPoint  `json:"timeline"`
}

// ComputePaymentStats sums confirmed payments only. Remaining is clamped at
// zero and Overpaid flags the clamp.
func ComputePaymentStats(total decimal.Decimal, payments []domain.Payment) PaymentStats {
	confirmed := make([]domain.Payment, 0, len(payments))
	stats := PaymentStats{Total: total, Timeline: []PaymentPoint{}}
	for _, p := range payments {
		if p.FreelancerConfirmed {
			confirmed = append(confirmed, p)
			continue
		}
		stats.PendingCount++
		stats.Unconfirmed = stats.Unconfirmed.Add(p.Amount)
	}
	sort.SliceStable(confirmed, func(i, j int) bool {
		if confirmed[i].CreatedAt != confirmed[j].CreatedAt {
			return confirmed[i].CreatedAt < confirmed[j].CreatedAt
		}
		return confirmed[i].ID < confirmed[j].ID
	})
	for _, p := range confirmed {
		stats.Paid = stats.Paid.Add(p.Amount)
		stats.Timeline = append(stats.Timeline, PaymentPoint{
			PaymentID:   p.ID,
			Date:        dateOf(p.CreatedAt),
			Amount:      p.Amount,
			Cumulative:  stats.Paid,
			Description: p.Description,
		})
	}
	stats.PaymentCount = len(confirmed)
	stats.Remaining = total.Sub(stats.Paid)
	if stats.Remaining.IsNegative() {
		stats.Remaining = decimal.Zero
		stats.Overpaid = true
	}
	stats.Percentage = Percentage(stats.Paid, total)
	return stats
}

// Percentage returns part/total*100 rounded to two places, or zero when total is not positive.
func Percentage(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred).Round(2)
}

type AmountShare struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentDistribution splits the contracted total into paid and remaining.
func PaymentDistribution(stats PaymentStats) []AmountShare {
	return []AmountShare{
		{Label: "paid", Amount: stats.Paid},
		{Label: "remaining", Amount: stats.Remaining},
	}
}

// Report bundles every derived view of a snapshot.
type Report struct {
	Tasks               TaskCounts        `json:"tasks"`
	StatusDistribution  []StatusCount     `json:"status_distribution"`
	CompletionTimeline  []CompletionPoint `json:"completion_timeline"`
	Payments            PaymentStats      `json:"payments"`
	PaymentDistribution []AmountShare     `json:"payment_distribution"`
}

func Compute(s Snapshot) Report {
	stats := ComputePaymentStats(s.Workspace.TotalAmount, s.Payments)
	return Report{
		Tasks:               CountTasks(s.Tasks, s.Now),
		StatusDistribution:  StatusDistribution(s.Tasks, s.Now),
		CompletionTimeline:  CompletionTimeline(s.Tasks),
		Payments:            stats,
		PaymentDistribution: PaymentDistribution(stats),
	}
}

func dateOf(ts string) string {
	t, err := domain.ParseTime(ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(time.DateOnly)
}
