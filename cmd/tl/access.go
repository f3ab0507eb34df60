package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentlink/internal/engine"
)

func notificationsCmd() *cobra.Command {
	var unread bool
	var limit int
	n := &cobra.Command{
		Use:   "notifications",
		Short: "List the actor's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListNotifications(ctx, actor, unread, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, item := range items {
					mark := " "
					if !item.Read {
						mark = "*"
					}
					rows = append(rows, table.Row{mark, item.ID, item.CreatedAt, item.Title, item.Message})
				}
				return render(items, table.Row{"", "ID", "At", "Title", "Message"}, rows)
			})
		},
	}
	n.Flags().BoolVar(&unread, "unread", false, "only unread")
	n.Flags().IntVar(&limit, "limit", 50, "max notifications")
	n.AddCommand(&cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.MarkNotificationRead(ctx, actor, args[0])
			})
		},
	})
	return n
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP API"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, raw, err := e.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
				}
				fmt.Println(raw)
				color.New(color.FgYellow).Println("store this key now; it is not shown again")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, table.Row{key.ID, key.Name, key.CreatedAt})
				}
				return render(keys, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAPIKey(ctx, actor, args[0])
			})
		},
	}
	k.AddCommand(create, list, del)
	return k
}
