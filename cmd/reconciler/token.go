package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/subscription-reconciler/internal/auth"
	"github.com/spec-kit/subscription-reconciler/internal/config"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the reconcile endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ValidateAuth(); err != nil {
			return err
		}
		if strings.TrimSpace(tokenSubject) == "" {
			return errors.New("--subject is required")
		}

		tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name)
		token, expires, err := tm.GenerateToken(tokenSubject, domain.Role(strings.ToLower(tokenRole)))
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
		return nil
	},
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Print the bcrypt hash to put in AUTH_SCHEDULER_SECRET_HASH",
	Long:  "Hashes the scheduler's shared secret. The secret is read from stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var secret string
		if len(args) == 1 {
			secret = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read secret: %w", err)
			}
			secret = strings.TrimSpace(line)
		}
		if secret == "" {
			return errors.New("secret must not be empty")
		}

		hash, err := auth.HashSecret(secret, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator identifier recorded in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleAdmin), "Role claim")
}
