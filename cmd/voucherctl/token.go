package main

import (
	"time"

	"github.com/erp/voucher-export/internal/infrastructure/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API access tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign an access token for the export API",
	Long: `Sign an HS256 access token with the configured JWT secret. The export API
does not log users in; an identity provider or an operator issues its tokens.`,
	Example: `  voucherctl token issue --tenant $T --user $U --username alice \
    --permission voucher_export:create --permission voucher_export:read`,
	RunE: runTokenIssue,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	f := tokenIssueCmd.Flags()
	f.String("username", "", "Username carried in the token")
	f.StringArray("permission", nil, "Permission to grant, repeatable")
	f.Duration("ttl", 0, "Token lifetime (default from jwt.access_token_expiration)")
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	tenantID, err := parseIDFlag("tenant", tenantFlag)
	if err != nil {
		return err
	}
	userID, err := parseIDFlag("user", userFlag)
	if err != nil {
		return err
	}
	username, _ := cmd.Flags().GetString("username")
	permissions, _ := cmd.Flags().GetStringArray("permission")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	token, err := auth.NewJWTService(cfg.JWT).GenerateAccessToken(auth.GenerateTokenInput{
		TenantID:    tenantID,
		UserID:      userID,
		Username:    username,
		Permissions: permissions,
		ExpiresIn:   ttl,
	})
	if err != nil {
		return err
	}
	return printJSON(struct {
		*auth.AccessToken
		ExpiresIn string `json:"expires_in"`
	}{token, time.Until(token.ExpiresAt).Round(time.Second).String()})
}
