package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentlink/internal/app"
	"talentlink/internal/config"
	"talentlink/internal/db"
	"talentlink/internal/engine"
	"talentlink/internal/engine/auth"
	"talentlink/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Talentlink workspace engine",
	Long: `Talentlink runs the shared workspace of a freelance engagement.
- Workspace: opened once per active contract, shared by its client and contractor.
- Tasks: created by either party, always assigned to the contractor; overdue is derived from the deadline.
- Payments: logged by the client, counted as paid only after the contractor confirms them.
- Payment requests: raised by the contractor, approved or rejected once by the client.
- Completion: the engagement closes when both parties have marked it complete.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureDataDir(viper.GetString("data-dir"))
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TALENTLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", ".talentlink", "data directory holding the database and talentlink.yml")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <data-dir>/talentlink.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting party id")
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(analyticsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage talentlink.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config into the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("data-dir"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			color.New(color.FgGreen).Println("config ok")
			return nil
		},
	})
	return cfg
}

func loadConfig() (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	return config.LoadOptional(viper.GetString("data-dir"))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Serve the workspace API. Secrets are read from the environment:
  TALENTLINK_JWT_SECRET             signs and verifies bearer tokens
  TALENTLINK_STRIPE_WEBHOOK_SECRET  verifies Stripe webhook signatures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt_secret"),
				AllowActorHeader: cfg.Auth.AllowActorHeader,
				DevLogin:         cfg.Auth.DevLogin,
				TokenTTL:         time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader {
				return errors.New("TALENTLINK_JWT_SECRET is required unless auth.allow_actor_header is set")
			}
			stripeCfg := server.StripeConfig{
				Enabled:       cfg.Billing.Stripe.Enabled,
				WebhookSecret: viper.GetString("stripe_webhook_secret"),
				MetadataKey:   cfg.Billing.Stripe.MetadataKey,
			}
			if stripeCfg.Enabled && stripeCfg.WebhookSecret == "" {
				return errors.New("TALENTLINK_STRIPE_WEBHOOK_SECRET is required when billing.stripe.enabled is set")
			}
			handler, err := server.New(server.Config{
				Engine:      a.Engine,
				BasePath:    basePath,
				Auth:        authCfg,
				CORSOrigins: cfg.Server.CORSOrigins,
				Stripe:      stripeCfg,
				Logger:      a.Logger,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), a.Engine, a.Logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			a.Logger.Info("serving talentlink API", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		DataDir:    viper.GetString("data-dir"),
		ConfigPath: viper.GetString("config"),
		LogOutput:  os.Stderr,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func actorID() (string, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return "", errors.New("--actor-id (or TALENTLINK_ACTOR_ID) is required")
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON under --json and as a table otherwise.
func render(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold)
	var fe auth.ForbiddenError
	var ce *engine.ConflictError
	switch {
	case errors.As(err, &fe):
		red.Fprint(os.Stderr, "forbidden: ")
	case errors.As(err, &ce):
		red.Fprintf(os.Stderr, "conflict (%s): ", ce.Code)
	default:
		red.Fprint(os.Stderr, "error: ")
	}
	fmt.Fprintln(os.Stderr, err)
}

func parseDeadline(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("deadline %q must be RFC3339 or YYYY-MM-DD", raw)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
