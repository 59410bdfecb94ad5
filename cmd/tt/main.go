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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"teamtask/internal/app"
	"teamtask/internal/config"
	"teamtask/internal/domain"
	"teamtask/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "Team task tracker",
	Long: `tt tracks team tasks with a three-level role hierarchy.
- Roles: Admin > Manager > Member. A higher role satisfies any lower requirement.
- Managers and Admins create, assign, edit and delete any task.
- Members see only tasks assigned to them and may change only their status.
- Workspace: the .teamtask directory holds the database; teamtask.yml holds server, cache and seed-user settings.
- Local commands act as the user named by --as, with the role stored for that user.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMTASK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "user id to act as for local commands")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage teamtask.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default teamtask.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Users = make([]config.SeedUser, len(cfg.Users))
			for i, u := range cfg.Users {
				u.Password = "***"
				redacted.Users[i] = u
			}
			if viper.GetBool("json") {
				return printJSON(redacted)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redacted)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate teamtask.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return fmt.Errorf("TEAMTASK_JWT_SECRET is required for bearer auth")
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				cfg := ac.Config
				if cmd.Flags().Changed("addr") {
					cfg.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					cfg.Server.BasePath = basePath
				}
				handler, err := server.New(server.Config{
					Engine:   ac.Engine,
					BasePath: cfg.Server.BasePath,
					Auth: server.AuthConfig{
						JWTSecret: secret,
						Issuer:    cfg.Auth.Issuer,
						TokenTTL:  cfg.Auth.TokenTTL,
					},
					RequestTimeout: cfg.Server.RequestTimeout,
					Logger:         log.StandardLogger(),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.WithFields(log.Fields{
					"addr":      cfg.Server.Addr,
					"base_path": cfg.Server.BasePath,
				}).Infof("serving team task API (OpenAPI at %s/openapi.json, Swagger UI at /docs)", cfg.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	ac, err := app.Open(ctx, viper.GetString("workspace"), log.StandardLogger())
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac)
}

// actingAs resolves the --as user to a principal with its stored role.
func actingAs(ctx context.Context, ac *app.Context) (*domain.Principal, error) {
	id := viper.GetString("as")
	if id == "" {
		return nil, fmt.Errorf("--as is required (or TEAMTASK_AS)")
	}
	p, err := ac.Engine.ResolvePrincipal(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
