package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentlink/internal/domain"
	"talentlink/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage workspace tasks"}
	task.PersistentFlags().String("workspace", "", "workspace id")
	_ = task.MarkPersistentFlagRequired("workspace")
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskCommentCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func workspaceFlag(cmd *cobra.Command) string {
	ws, _ := cmd.Flags().GetString("workspace")
	return ws
}

func taskCreateCmd() *cobra.Command {
	var title, desc, priority, status, deadline string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task assigned to the contractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			due, err := parseDeadline(deadline)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					WorkspaceID: workspaceFlag(cmd),
					Title:       title,
					Description: desc,
					Priority:    priority,
					Status:      status,
					Deadline:    due,
					ActorID:     actor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Println(t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339 or YYYY-MM-DD)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, priority string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTasks(ctx, engine.TaskListOptions{
					WorkspaceID: workspaceFlag(cmd),
					Status:      status,
					Priority:    priority,
					Limit:       limit,
					ActorID:     actor,
				})
				if err != nil {
					return err
				}
				now := time.Now()
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					rows = append(rows, table.Row{t.ID, t.Title, t.Priority, t.EffectiveStatus(now), deref(t.Deadline)})
				}
				return render(items, table.Row{"ID", "Title", "Priority", "Status", "Deadline"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by effective status")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority")
	cmd.Flags().IntVar(&limit, "limit", 50, "max tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, workspaceFlag(cmd), args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s [%s] %s\n", t.Title, t.EffectiveStatus(time.Now()), t.Priority)
				if t.Description != "" {
					fmt.Println(t.Description)
				}
				for _, c := range t.Comments {
					fmt.Printf("  %s %s: %s\n", c.CreatedAt, c.AuthorName, c.Text)
				}
				return nil
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, priority, deadline string
	var clearDeadline bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{WorkspaceID: workspaceFlag(cmd), ID: args[0], ClearDeadline: clearDeadline, ActorID: actor}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if opts.Deadline, err = parseDeadline(deadline); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "remove the deadline")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <todo|in_progress|completed>",
		Short: "Move a task (contractor only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTaskStatus(ctx, workspaceFlag(cmd), args[0], args[1], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("%s is now %s\n", t.ID, t.Status)
				return nil
			})
		},
	}
}

func taskCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddComment(ctx, workspaceFlag(cmd), args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, workspaceFlag(cmd), args[0], actor)
			})
		},
	}
}

func paymentCmd() *cobra.Command {
	pay := &cobra.Command{Use: "payment", Short: "Log, confirm and list payments"}
	pay.PersistentFlags().String("workspace", "", "workspace id")
	_ = pay.MarkPersistentFlagRequired("workspace")

	var amount, desc, method, txID, requestID string
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Log a payment (client only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			amt, err := amountFlag(amount)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.LogPayment(ctx, engine.PaymentLogOptions{
					WorkspaceID:   workspaceFlag(cmd),
					Amount:        amt,
					Description:   desc,
					PaymentMethod: method,
					TransactionID: txID,
					RequestID:     requestID,
					ActorID:       actor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("payment %s logged; awaiting contractor confirmation\n", p.ID)
				return nil
			})
		},
	}
	logCmd.Flags().StringVar(&amount, "amount", "", "amount")
	logCmd.Flags().StringVar(&desc, "description", "", "description")
	logCmd.Flags().StringVar(&method, "method", "", "payment method")
	logCmd.Flags().StringVar(&txID, "transaction-id", "", "external transaction reference")
	logCmd.Flags().StringVar(&requestID, "request", "", "approved payment request this settles")

	confirmCmd := &cobra.Command{
		Use:   "confirm <payment-id>",
		Short: "Confirm receipt (contractor only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ConfirmPayment(ctx, workspaceFlag(cmd), args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("payment %s confirmed\n", p.ID)
				return nil
			})
		},
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List payments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			opts := engine.PaymentListOptions{WorkspaceID: workspaceFlag(cmd), ActorID: actor}
			switch status {
			case "":
			case domain.PaymentPending, domain.PaymentConfirmed:
				confirmed := status == domain.PaymentConfirmed
				opts.Confirmed = &confirmed
			default:
				return fmt.Errorf("--status must be pending or confirmed")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPayments(ctx, opts)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, p := range items {
					rows = append(rows, table.Row{p.ID, p.Amount.StringFixed(2), p.PaymentMethod, p.Status(), p.CreatedAt})
				}
				return render(items, table.Row{"ID", "Amount", "Method", "Status", "Logged"}, rows)
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "pending or confirmed")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Paid, remaining and the confirmed-payment timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.PaymentStats(ctx, workspaceFlag(cmd), actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(s.Timeline))
				for _, pt := range s.Timeline {
					rows = append(rows, table.Row{pt.Date, pt.Amount.StringFixed(2), pt.Cumulative.StringFixed(2)})
				}
				rows = append(rows, table.Row{"remaining", "", s.Remaining.StringFixed(2)})
				return render(s, table.Row{"Date", "Amount", "Cumulative"}, rows)
			})
		},
	}

	pay.AddCommand(logCmd, confirmCmd, listCmd, statsCmd)
	return pay
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Raise and resolve payment requests"}
	req.PersistentFlags().String("workspace", "", "workspace id")
	_ = req.MarkPersistentFlagRequired("workspace")

	var amount, message string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Ask the client for a payment (contractor only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			amt, err := amountFlag(amount)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pr, err := e.CreateRequest(ctx, engine.RequestCreateOptions{
					WorkspaceID: workspaceFlag(cmd),
					Amount:      amt,
					Message:     message,
					ActorID:     actor,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pr)
				}
				fmt.Println(pr.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&amount, "amount", "", "amount")
	createCmd.Flags().StringVar(&message, "message", "", "message to the client")

	approveCmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request (client only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pr, err := e.ApproveRequest(ctx, workspaceFlag(cmd), args[0], actor)
				if err != nil {
					return err
				}
				return printJSON(pr)
			})
		},
	}

	var reason string
	rejectCmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request (client only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pr, err := e.RejectRequest(ctx, workspaceFlag(cmd), args[0], reason, actor)
				if err != nil {
					return err
				}
				return printJSON(pr)
			})
		},
	}
	rejectCmd.Flags().StringVar(&reason, "reason", "", "rejection reason")

	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List payment requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequests(ctx, engine.RequestListOptions{WorkspaceID: workspaceFlag(cmd), Status: status, ActorID: actor})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, pr := range items {
					rows = append(rows, table.Row{pr.ID, pr.Amount.StringFixed(2), pr.Status, pr.Message, deref(pr.RejectionReason)})
				}
				return render(items, table.Row{"ID", "Amount", "Status", "Message", "Reason"}, rows)
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "pending, approved or rejected")

	req.AddCommand(createCmd, approveCmd, rejectCmd, listCmd)
	return req
}
