package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"talentlink/internal/domain"
	"talentlink/internal/engine"
)

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Aliases: []string{"ws"}, Short: "Open and inspect workspaces"}
	ws.AddCommand(workspaceOpenCmd())
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceShowCmd())
	ws.AddCommand(workspaceBackfillCmd())
	return ws
}

func workspaceOpenCmd() *cobra.Command {
	var c engine.ContractActivation
	var total string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the workspace for an active contract (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if total != "" {
				d, err := engine.ParseAmount(total)
				if err != nil {
					return err
				}
				c.TotalAmount = d
			}
			actor := viper.GetString("actor-id")
			if actor == "" {
				actor = engine.SystemActor
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, created, err := e.OpenWorkspace(ctx, c, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"workspace": w, "created": created})
				}
				verb := "opened"
				if !created {
					verb = "already open"
				}
				fmt.Printf("workspace %s %s for contract %s\n", w.ID, verb, w.ContractID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&c.ContractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&c.Title, "title", "", "workspace title")
	cmd.Flags().StringVar(&c.Type, "type", domain.WorkspaceProject, "project, job or general")
	cmd.Flags().StringVar(&c.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&c.ClientName, "client-name", "", "client display name")
	cmd.Flags().StringVar(&c.ContractorID, "contractor", "", "contractor id")
	cmd.Flags().StringVar(&c.ContractorName, "contractor-name", "", "contractor display name")
	cmd.Flags().StringVar(&total, "total", "", "contract total amount")
	cmd.Flags().StringVar(&c.Currency, "currency", "", "currency code (defaults to ledger.currency)")
	cmd.Flags().StringVar(&c.Status, "status", domain.ContractActive, "contract status")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the actor's workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorkspaces(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, w := range items {
					rows = append(rows, table.Row{w.ID, w.Title, w.ClientID, w.ContractorID, w.TotalAmount.StringFixed(2) + " " + w.Currency, w.ContractStatus})
				}
				return render(items, table.Row{"ID", "Title", "Client", "Contractor", "Total", "Status"}, rows)
			})
		},
	}
}

func workspaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <workspace-id>",
		Short: "Dashboard summary for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Summary(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				w := s.Workspace
				fmt.Printf("%s (%s) as %s\n", w.Title, w.ID, s.Role)
				fmt.Printf("Contract %s: %s\n", w.ContractID, w.ContractStatus)
				fmt.Printf("Tasks: %d total, %d completed, %d pending, %d overdue\n",
					s.Tasks.Total, s.Tasks.Completed, s.Tasks.Pending, s.Tasks.Overdue)
				fmt.Printf("Paid %s of %s %s (%s%%), %s remaining\n",
					s.Payments.Paid.StringFixed(2), s.Payments.Total.StringFixed(2), w.Currency,
					s.Payments.Percentage.StringFixed(2), s.Payments.Remaining.StringFixed(2))
				fmt.Printf("Completion: client=%t contractor=%t\n", w.ClientMarkedComplete, w.ContractorMarkedComplete)
				return nil
			})
		},
	}
}

type backfillFile struct {
	Contracts []engine.ContractActivation `yaml:"contracts"`
}

func workspaceBackfillCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Open workspaces for every active contract listed in a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in backfillFile
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Backfill(ctx, in.Contracts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("created %d, skipped %d, failed %d\n", len(res.Created), len(res.Skipped), len(res.Failed))
				for id, msg := range res.Failed {
					fmt.Printf("  %s: %s\n", id, msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a contracts list")
	return cmd
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <workspace-id>",
		Short: "Mark the engagement complete for the acting party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.MarkComplete(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				if w.IsFullyCompleted() {
					fmt.Println("both parties confirmed; workspace completed")
				} else {
					fmt.Println("marked complete; waiting for", w.Counterparty(actor))
				}
				return nil
			})
		},
	}
}

func analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics <workspace-id>",
		Short: "Task distribution, completion timeline and payment progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.Analytics(ctx, args[0], actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(r.StatusDistribution)+len(r.PaymentDistribution))
				for _, s := range r.StatusDistribution {
					rows = append(rows, table.Row{"tasks", s.Status, s.Count})
				}
				for _, share := range r.PaymentDistribution {
					rows = append(rows, table.Row{"payments", share.Label, share.Amount.StringFixed(2)})
				}
				rows = append(rows, table.Row{"payments", "percentage", r.Payments.Percentage.StringFixed(2)})
				return render(r, table.Row{"Section", "Bucket", "Value"}, rows)
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	evts := &cobra.Command{Use: "events", Short: "Workspace audit trail"}
	var n int
	var evtType string
	tail := &cobra.Command{
		Use:   "tail <workspace-id>",
		Short: "Show the newest events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEvents(ctx, args[0], actor, evtType, n)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, ev := range items {
					rows = append(rows, table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind, ev.EntityID, ev.ActorID})
				}
				return render(items, table.Row{"ID", "At", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	evts.AddCommand(tail)
	return evts
}

// amountFlag parses a decimal amount flag.
func amountFlag(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("--amount required")
	}
	return engine.ParseAmount(raw)
}
