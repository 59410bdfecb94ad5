package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamtask/internal/app"
	"teamtask/internal/engine"
	"teamtask/internal/server"
)

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	user.AddCommand(userListCmd())
	user.AddCommand(userCreateCmd())
	user.AddCommand(userRoleCmd())
	return user
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				users, err := ac.Engine.ListUsers(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (Admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Password == "" {
				opts.Password = viper.GetString("new_password")
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				u, err := ac.Engine.CreateUser(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("created %s (%s) as %s\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Role, "role", "Member", "Admin, Manager or Member")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (or TEAMTASK_NEW_PASSWORD)")
	return cmd
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <role>",
		Short: "Change a user's role (Admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				u, err := ac.Engine.SetUserRole(ctx, p, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("%s is now %s\n", u.ID, u.Role)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue API tokens",
	}
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint <user-id>",
		Short: "Mint a bearer token for a user (needs TEAMTASK_JWT_SECRET)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return fmt.Errorf("TEAMTASK_JWT_SECRET is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				u, err := ac.Engine.Repo.GetUser(ctx, args[0])
				if err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				cfg := server.AuthConfig{JWTSecret: secret, Issuer: ac.Config.Auth.Issuer, TokenTTL: ac.Config.Auth.TokenTTL}
				if ttl > 0 {
					cfg.TokenTTL = ttl
				}
				signed, expires, err := server.IssueToken(cfg, u, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": signed, "expires_at": expires.UTC().Format(time.RFC3339)})
				}
				fmt.Println(signed)
				return nil
			})
		},
	}
	mint.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	token.AddCommand(mint)
	return token
}

func apiKeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	var name string
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create an API key for a user; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				raw, k, err := ac.Engine.CreateAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": k.ID, "user_id": k.UserID, "key": raw})
				}
				fmt.Println(raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	key.AddCommand(create)
	key.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "List API keys of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				keys, err := ac.Engine.Repo.ListAPIKeys(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	key.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				if err := ac.Engine.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	})
	return key
}
