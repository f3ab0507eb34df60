package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentlink/internal/config"
	"talentlink/internal/db"
	"talentlink/internal/domain"
	"talentlink/internal/engine"
	"talentlink/internal/engine/auth"
	"talentlink/internal/migrate"
	"talentlink/internal/repo"
)

const (
	client     = "client-1"
	contractor = "freelancer-1"
	outsider   = "stranger-1"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Workspace domain.Workspace
	clock     *time.Time
}

// advance moves the engine clock forward.
func (env testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	w, created, err := eng.OpenWorkspace(ctx, engine.ContractActivation{
		ContractID:     "contract-1",
		Title:          "Landing page",
		ClientID:       client,
		ClientName:     "Acme",
		ContractorID:   contractor,
		ContractorName: "Riya",
		TotalAmount:    decimal.NewFromInt(10000),
		Currency:       "INR",
		Status:         domain.ContractActive,
	}, engine.SystemActor)
	require.NoError(t, err)
	require.True(t, created)
	return testEnv{Engine: eng, Ctx: ctx, Workspace: w, clock: &clock}
}

func (env testEnv) task(t *testing.T, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: env.Workspace.ID,
		Title:       title,
		ActorID:     client,
	})
	require.NoError(t, err)
	return task
}

func (env testEnv) logPayment(t *testing.T, amount int64) domain.Payment {
	t.Helper()
	p, err := env.Engine.LogPayment(env.Ctx, engine.PaymentLogOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.NewFromInt(amount),
		ActorID:     client,
	})
	require.NoError(t, err)
	return p
}

func conflictCode(err error) string {
	var ce *engine.ConflictError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func TestStatsPartitionTasks(t *testing.T) {
	env := newTestEnv(t)
	statuses := []string{domain.TaskTodo, domain.TaskInProgress, domain.TaskCompleted, domain.TaskCompleted}
	for i, s := range statuses {
		task := env.task(t, "task")
		if s == domain.TaskTodo {
			continue
		}
		_, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, s, contractor)
		require.NoError(t, err, "task %d", i)
	}

	summary, err := env.Engine.Summary(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Tasks.Total)
	assert.Equal(t, 2, summary.Tasks.Completed)
	assert.Equal(t, 2, summary.Tasks.Pending)
	assert.Equal(t, 0, summary.Tasks.Overdue)
	assert.Equal(t, summary.Tasks.Total, summary.Tasks.Completed+summary.Tasks.Pending+summary.Tasks.Overdue)
}

func TestPaymentCountsOnlyAfterConfirmation(t *testing.T) {
	env := newTestEnv(t)
	p := env.logPayment(t, 5000)
	assert.False(t, p.FreelancerConfirmed)

	stats, err := env.Engine.PaymentStats(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.True(t, stats.Paid.IsZero())
	assert.Equal(t, "5000", stats.Unconfirmed.String())
	assert.Equal(t, 1, stats.PendingCount)

	confirmed, err := env.Engine.ConfirmPayment(env.Ctx, env.Workspace.ID, p.ID, contractor)
	require.NoError(t, err)
	assert.True(t, confirmed.FreelancerConfirmed)
	require.NotNil(t, confirmed.ConfirmedAt)

	stats, err = env.Engine.PaymentStats(env.Ctx, env.Workspace.ID, contractor)
	require.NoError(t, err)
	assert.Equal(t, "5000", stats.Paid.String())
	assert.Equal(t, "5000", stats.Remaining.String())
	assert.Equal(t, "50", stats.Percentage.String())
	require.Len(t, stats.Timeline, 1)
	assert.Equal(t, p.ID, stats.Timeline[0].PaymentID)
}

func TestRejectedRequestIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	pr, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.NewFromInt(2000),
		Message:     "milestone 1",
		ActorID:     contractor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, pr.Status)

	rejected, err := env.Engine.RejectRequest(env.Ctx, env.Workspace.ID, pr.ID, "out of scope", client)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, rejected.Status)

	_, err = env.Engine.ApproveRequest(env.Ctx, env.Workspace.ID, pr.ID, client)
	require.Error(t, err)
	assert.Equal(t, engine.CodeNotPending, conflictCode(err))

	list, err := env.Engine.ListRequests(env.Ctx, engine.RequestListOptions{WorkspaceID: env.Workspace.ID, ActorID: contractor})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RequestRejected, list[0].Status)
	require.NotNil(t, list[0].RejectionReason)
	assert.Equal(t, "out of scope", *list[0].RejectionReason)
}

func TestMutualCompletion(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.MarkComplete(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.True(t, w.ClientMarkedComplete)
	assert.False(t, w.IsFullyCompleted())
	assert.Nil(t, w.CompletedAt)

	w, err = env.Engine.MarkComplete(env.Ctx, env.Workspace.ID, contractor)
	require.NoError(t, err)
	assert.True(t, w.IsFullyCompleted())
	require.NotNil(t, w.CompletedAt)

	_, err = env.Engine.MarkComplete(env.Ctx, env.Workspace.ID, client)
	assert.Equal(t, engine.CodeAlreadyMarked, conflictCode(err))

	completed, err := env.Engine.ListEvents(env.Ctx, env.Workspace.ID, client, "workspace.completed", 0)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	for _, party := range []string{client, contractor} {
		notes, err := env.Engine.ListNotifications(env.Ctx, party, false, 0)
		require.NoError(t, err)
		found := false
		for _, n := range notes {
			if n.Title == "Workspace Completed!" {
				found = true
			}
		}
		assert.True(t, found, "completion notice for %s", party)
	}
}

func TestOverdueTaskCountedUntilCompleted(t *testing.T) {
	env := newTestEnv(t)
	past := env.clock.Add(-48 * time.Hour)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		WorkspaceID: env.Workspace.ID,
		Title:       "late",
		Deadline:    &past,
		ActorID:     client,
	})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskInProgress, contractor)
	require.NoError(t, err)

	summary, err := env.Engine.Summary(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Tasks.Overdue)
	assert.Equal(t, 0, summary.Tasks.Pending)

	overdue, err := env.Engine.ListTasks(env.Ctx, engine.TaskListOptions{WorkspaceID: env.Workspace.ID, Status: domain.TaskOverdue, ActorID: client})
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskCompleted, contractor)
	require.NoError(t, err)
	summary, err = env.Engine.Summary(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Tasks.Overdue)
	assert.Equal(t, 1, summary.Tasks.Completed)
}

func TestOverdueCannotBeSet(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "write copy")
	_, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskOverdue, contractor)
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestCompletedAtFollowsStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "deploy")
	done, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskCompleted, contractor)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)

	reopened, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskInProgress, contractor)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestTaskPermissions(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "review")

	_, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Workspace.ID, task.ID, domain.TaskCompleted, client)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []auth.Role{auth.RoleContractor}, fe.Required)

	_, err = env.Engine.GetTask(env.Ctx, env.Workspace.ID, task.ID, outsider)
	require.ErrorAs(t, err, &fe)
	assert.Empty(t, fe.Required)

	_, err = env.Engine.AddComment(env.Ctx, env.Workspace.ID, task.ID, "looks good", contractor)
	require.NoError(t, err)
	got, err := env.Engine.GetTask(env.Ctx, env.Workspace.ID, task.ID, client)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "Riya", got.Comments[0].AuthorName)
}

func TestValidationPrecedesAuthorization(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{WorkspaceID: env.Workspace.ID, Title: "  ", ActorID: outsider})
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = env.Engine.LogPayment(env.Ctx, engine.PaymentLogOptions{WorkspaceID: env.Workspace.ID, Amount: decimal.NewFromInt(-5), ActorID: contractor})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)

	_, err = env.Engine.LogPayment(env.Ctx, engine.PaymentLogOptions{WorkspaceID: env.Workspace.ID, Amount: decimal.NewFromInt(5), ActorID: contractor})
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func TestAmountScaleJudgedByValue(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.LogPayment(env.Ctx, engine.PaymentLogOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.RequireFromString("10.000"),
		ActorID:     client,
	})
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(10)))

	_, err = env.Engine.LogPayment(env.Ctx, engine.PaymentLogOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.RequireFromString("10.005"),
		ActorID:     client,
	})
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)

	parsed, err := engine.ParseAmount("2500.500")
	require.NoError(t, err)
	assert.Equal(t, "2500.50", parsed.StringFixed(2))
}

func TestNotFoundScopedToWorkspace(t *testing.T) {
	env := newTestEnv(t)
	other, _, err := env.Engine.OpenWorkspace(env.Ctx, engine.ContractActivation{
		ContractID:   "contract-2",
		ClientID:     client,
		ContractorID: contractor,
		TotalAmount:  decimal.NewFromInt(100),
		Status:       domain.ContractActive,
	}, client)
	require.NoError(t, err)
	task := env.task(t, "scoped")

	_, err = env.Engine.GetTask(env.Ctx, other.ID, task.ID, client)
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, _, err = env.Engine.GetWorkspace(env.Ctx, "missing", client)
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "workspace", nf.Kind)
}

func TestDoubleConfirmConflicts(t *testing.T) {
	env := newTestEnv(t)
	p := env.logPayment(t, 1000)
	_, err := env.Engine.ConfirmPayment(env.Ctx, env.Workspace.ID, p.ID, contractor)
	require.NoError(t, err)
	_, err = env.Engine.ConfirmPayment(env.Ctx, env.Workspace.ID, p.ID, contractor)
	assert.Equal(t, engine.CodeAlreadyConfirmed, conflictCode(err))

	stats, err := env.Engine.PaymentStats(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.Equal(t, "1000", stats.Paid.String())
}

func TestConcurrentConfirmSucceedsOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.logPayment(t, 750)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.ConfirmPayment(env.Ctx, env.Workspace.ID, p.ID, contractor)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.Equal(t, engine.CodeAlreadyConfirmed, conflictCode(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	confirmed, err := env.Engine.ListEvents(env.Ctx, env.Workspace.ID, client, "payment.confirmed", 0)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestPaymentLinkedToApprovedRequest(t *testing.T) {
	env := newTestEnv(t)
	pr, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.NewFromInt(3000),
		ActorID:     contractor,
	})
	require.NoError(t, err)

	opts := engine.PaymentLogOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.NewFromInt(3000),
		RequestID:   pr.ID,
		ActorID:     client,
	}
	_, err = env.Engine.LogPayment(env.Ctx, opts)
	assert.Equal(t, engine.CodeRequestNotApproved, conflictCode(err))

	_, err = env.Engine.ApproveRequest(env.Ctx, env.Workspace.ID, pr.ID, client)
	require.NoError(t, err)
	p, err := env.Engine.LogPayment(env.Ctx, opts)
	require.NoError(t, err)
	require.NotNil(t, p.RequestID)
	assert.Equal(t, pr.ID, *p.RequestID)

	_, err = env.Engine.LogPayment(env.Ctx, opts)
	assert.Equal(t, engine.CodeRequestLinked, conflictCode(err))
}

func TestApprovalDoesNotCreatePayment(t *testing.T) {
	env := newTestEnv(t)
	pr, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		WorkspaceID: env.Workspace.ID,
		Amount:      decimal.NewFromInt(500),
		ActorID:     contractor,
	})
	require.NoError(t, err)
	_, err = env.Engine.ApproveRequest(env.Ctx, env.Workspace.ID, pr.ID, client)
	require.NoError(t, err)

	payments, err := env.Engine.ListPayments(env.Ctx, engine.PaymentListOptions{WorkspaceID: env.Workspace.ID, ActorID: client})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestOverpaymentClampsRemaining(t *testing.T) {
	env := newTestEnv(t)
	for _, amount := range []int64{6000, 7000} {
		p := env.logPayment(t, amount)
		env.advance(time.Hour)
		_, err := env.Engine.ConfirmPayment(env.Ctx, env.Workspace.ID, p.ID, contractor)
		require.NoError(t, err)
	}
	stats, err := env.Engine.PaymentStats(env.Ctx, env.Workspace.ID, client)
	require.NoError(t, err)
	assert.True(t, stats.Remaining.IsZero())
	assert.True(t, stats.Overpaid)
	assert.Equal(t, "130", stats.Percentage.String())
	require.Len(t, stats.Timeline, 2)
	assert.Equal(t, "6000", stats.Timeline[0].Cumulative.String())
	assert.Equal(t, "13000", stats.Timeline[1].Cumulative.String())
}

func TestOpenWorkspaceIdempotent(t *testing.T) {
	env := newTestEnv(t)
	again, created, err := env.Engine.OpenWorkspace(env.Ctx, engine.ContractActivation{
		ContractID:   "contract-1",
		ClientID:     client,
		ContractorID: contractor,
		TotalAmount:  decimal.NewFromInt(10000),
		Status:       domain.ContractActive,
	}, engine.SystemActor)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, env.Workspace.ID, again.ID)

	_, _, err = env.Engine.OpenWorkspace(env.Ctx, engine.ContractActivation{
		ContractID:   "contract-9",
		ClientID:     client,
		ContractorID: contractor,
		Status:       "draft",
	}, engine.SystemActor)
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestBackfillSkipsExistingAndInactive(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Backfill(env.Ctx, []engine.ContractActivation{
		{ContractID: "contract-1", ClientID: client, ContractorID: contractor, Status: domain.ContractActive},
		{ContractID: "contract-2", ClientID: client, ContractorID: contractor, Status: domain.ContractActive},
		{ContractID: "contract-3", ClientID: client, ContractorID: contractor, Status: domain.ContractCompleted},
		{ContractID: "contract-4", ClientID: client, ContractorID: client, Status: domain.ContractActive},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"contract-2"}, res.Created)
	assert.ElementsMatch(t, []string{"contract-1", "contract-3"}, res.Skipped)
	assert.Contains(t, res.Failed, "contract-4")
}

func TestDeleteTaskLeavesNoAudit(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "temp")
	_, err := env.Engine.AddComment(env.Ctx, env.Workspace.ID, task.ID, "note", client)
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, env.Workspace.ID, task.ID, contractor))

	_, err = env.Engine.GetTask(env.Ctx, env.Workspace.ID, task.ID, client)
	require.ErrorIs(t, err, repo.ErrNotFound)
	comments, err := env.Engine.Repo.ListComments(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	events, err := env.Engine.ListEvents(env.Ctx, env.Workspace.ID, client, "", 0)
	require.NoError(t, err)
	for _, ev := range events {
		assert.NotEqual(t, "task.deleted", ev.Type)
	}
}

func TestTaskAssignmentNotifiesContractor(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "logo")
	assert.Equal(t, contractor, task.AssignedTo)

	notes, err := env.Engine.ListNotifications(env.Ctx, contractor, true, 0)
	require.NoError(t, err)
	var assigned *domain.Notification
	for i := range notes {
		if notes[i].EntityID == task.ID {
			assigned = &notes[i]
		}
	}
	require.NotNil(t, assigned)
	assert.Equal(t, "New Task Assigned", assigned.Title)

	require.NoError(t, env.Engine.MarkNotificationRead(env.Ctx, contractor, assigned.ID))
	err = env.Engine.MarkNotificationRead(env.Ctx, client, assigned.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRecordExternalPaymentDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	ext := engine.ExternalPayment{
		WorkspaceID:   env.Workspace.ID,
		Amount:        decimal.RequireFromString("1250.50"),
		Currency:      "inr",
		Method:        "stripe",
		TransactionID: "pi_123",
	}
	p, created, err := env.Engine.RecordExternalPayment(env.Ctx, ext, "stripe")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, client, p.PaidBy)
	assert.False(t, p.FreelancerConfirmed)

	again, created, err := env.Engine.RecordExternalPayment(env.Ctx, ext, "stripe")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	ext.TransactionID = "pi_456"
	ext.Currency = "usd"
	_, _, err = env.Engine.RecordExternalPayment(env.Ctx, ext, "stripe")
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "currency", ve.Field)
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, client, "ci")
	require.NoError(t, err)
	actor, err := env.Engine.ResolveAPIKey(env.Ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, client, actor)

	err = env.Engine.DeleteAPIKey(env.Ctx, outsider, key.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	require.NoError(t, env.Engine.DeleteAPIKey(env.Ctx, client, key.ID))
	_, err = env.Engine.ResolveAPIKey(env.Ctx, raw)
	require.ErrorIs(t, err, repo.ErrNotFound)
}
