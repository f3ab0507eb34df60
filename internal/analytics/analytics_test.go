package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentlink/internal/domain"
)

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func task(status string, deadline, completedAt *string) domain.Task {
	return domain.Task{Status: status, Deadline: deadline, CompletedAt: completedAt}
}

func TestCountTasksPartition(t *testing.T) {
	past := ptr("2024-06-01T00:00:00Z")
	future := ptr("2024-07-01T00:00:00Z")
	tasks := []domain.Task{
		task(domain.TaskTodo, nil, nil),
		task(domain.TaskTodo, future, nil),
		task(domain.TaskInProgress, past, nil),
		task(domain.TaskTodo, past, nil),
		task(domain.TaskCompleted, past, ptr("2024-06-02T10:00:00Z")),
		task(domain.TaskInProgress, nil, nil),
	}
	c := CountTasks(tasks, now)
	assert.Equal(t, 6, c.Total)
	assert.Equal(t, 1, c.Completed)
	assert.Equal(t, 2, c.Overdue)
	assert.Equal(t, 3, c.Pending)
	assert.Equal(t, 2, c.Todo)
	assert.Equal(t, 1, c.InProgress)
	assert.Equal(t, c.Total, c.Completed+c.Pending+c.Overdue)
}

func TestStatusDistributionIncludesEmptyBuckets(t *testing.T) {
	dist := StatusDistribution(nil, now)
	require.Len(t, dist, 4)
	for i, want := range []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted, domain.TaskOverdue} {
		assert.Equal(t, want, dist[i].Status)
		assert.Zero(t, dist[i].Count)
	}
}

func TestCompletionTimelineCumulative(t *testing.T) {
	tasks := []domain.Task{
		task(domain.TaskCompleted, nil, ptr("2024-06-03T18:00:00Z")),
		task(domain.TaskCompleted, nil, ptr("2024-06-01T08:00:00Z")),
		task(domain.TaskCompleted, nil, ptr("2024-06-03T09:00:00Z")),
		task(domain.TaskInProgress, nil, nil),
	}
	points := CompletionTimeline(tasks)
	require.Len(t, points, 2)
	assert.Equal(t, CompletionPoint{Date: "2024-06-01", Completed: 1, Cumulative: 1}, points[0])
	assert.Equal(t, CompletionPoint{Date: "2024-06-03", Completed: 2, Cumulative: 3}, points[1])
}

func TestPaymentStatsIgnoresUnconfirmed(t *testing.T) {
	total := decimal.NewFromInt(10000)
	payments := []domain.Payment{
		{ID: "b", Amount: decimal.NewFromInt(2500), FreelancerConfirmed: true, CreatedAt: "2024-06-05T00:00:00Z"},
		{ID: "c", Amount: decimal.NewFromInt(1000), CreatedAt: "2024-06-04T00:00:00Z"},
		{ID: "a", Amount: decimal.RequireFromString("1250.25"), FreelancerConfirmed: true, CreatedAt: "2024-06-02T00:00:00Z"},
	}
	stats := ComputePaymentStats(total, payments)
	assert.Equal(t, "3750.25", stats.Paid.String())
	assert.Equal(t, "6249.75", stats.Remaining.String())
	assert.Equal(t, "1000", stats.Unconfirmed.String())
	assert.Equal(t, "37.5", stats.Percentage.String())
	assert.Equal(t, 2, stats.PaymentCount)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.Overpaid)

	require.Len(t, stats.Timeline, 2)
	assert.Equal(t, "a", stats.Timeline[0].PaymentID)
	assert.Equal(t, "2024-06-02", stats.Timeline[0].Date)
	assert.Equal(t, "3750.25", stats.Timeline[1].Cumulative.String())
	assert.True(t, stats.Paid.Equal(stats.Timeline[len(stats.Timeline)-1].Cumulative))
}

func TestPaymentStatsTimelineTieBreaksOnID(t *testing.T) {
	ts := "2024-06-05T00:00:00Z"
	stats := ComputePaymentStats(decimal.NewFromInt(100), []domain.Payment{
		{ID: "z", Amount: decimal.NewFromInt(10), FreelancerConfirmed: true, CreatedAt: ts},
		{ID: "m", Amount: decimal.NewFromInt(20), FreelancerConfirmed: true, CreatedAt: ts},
	})
	require.Len(t, stats.Timeline, 2)
	assert.Equal(t, "m", stats.Timeline[0].PaymentID)
	assert.Equal(t, "20", stats.Timeline[0].Cumulative.String())
}

func TestPaymentStatsZeroTotal(t *testing.T) {
	stats := ComputePaymentStats(decimal.Zero, []domain.Payment{
		{ID: "a", Amount: decimal.NewFromInt(50), FreelancerConfirmed: true, CreatedAt: "2024-06-05T00:00:00Z"},
	})
	assert.True(t, stats.Percentage.IsZero())
	assert.True(t, stats.Remaining.IsZero())
	assert.True(t, stats.Overpaid)
	assert.NotNil(t, stats.Timeline)
}

func TestPercentageRounding(t *testing.T) {
	got := Percentage(decimal.NewFromInt(1), decimal.NewFromInt(3))
	assert.Equal(t, "33.33", got.String())
	assert.True(t, Percentage(decimal.NewFromInt(5), decimal.NewFromInt(-1)).IsZero())
}

func TestComputeIsDeterministic(t *testing.T) {
	s := Snapshot{
		Workspace: domain.Workspace{TotalAmount: decimal.NewFromInt(500)},
		Tasks: []domain.Task{
			task(domain.TaskCompleted, nil, ptr("2024-06-01T08:00:00Z")),
			task(domain.TaskTodo, ptr("2024-06-01T00:00:00Z"), nil),
		},
		Payments: []domain.Payment{
			{ID: "a", Amount: decimal.NewFromInt(200), FreelancerConfirmed: true, CreatedAt: "2024-06-02T00:00:00Z"},
		},
		Now: now,
	}
	first := Compute(s)
	second := Compute(s)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.Tasks.Overdue)
	require.Len(t, first.PaymentDistribution, 2)
	assert.Equal(t, "200", first.PaymentDistribution[0].Amount.String())
	assert.Equal(t, "300", first.PaymentDistribution[1].Amount.String())
}
