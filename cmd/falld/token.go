package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/config"
)

var tokenOpts struct {
	subject  string
	email    string
	role     string
	fullName string
	ttl      time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with JWT_SECRET",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenOpts.subject, "subject", "", "account id placed in the sub claim (required)")
	f.StringVar(&tokenOpts.email, "email", "", "email claim")
	f.StringVar(&tokenOpts.role, "role", string(auth.RoleMember), "ADMIN or MEMBER")
	f.StringVar(&tokenOpts.fullName, "name", "", "fullName claim")
	f.DurationVar(&tokenOpts.ttl, "ttl", 0, "token lifetime (defaults to JWT_TTL)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	role := auth.Role(strings.ToUpper(strings.TrimSpace(tokenOpts.role)))
	if role != auth.RoleAdmin && role != auth.RoleMember {
		return fmt.Errorf("role must be ADMIN or MEMBER, got %q", tokenOpts.role)
	}
	ttl := cfg.Auth.TokenTTL
	if tokenOpts.ttl > 0 {
		ttl = tokenOpts.ttl
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl)
	signed, expiresAt, err := tokens.Generate(auth.Identity{
		AccountID: tokenOpts.subject,
		Email:     tokenOpts.email,
		Role:      role,
		FullName:  tokenOpts.fullName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), signed)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}
