package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dealgrid/api/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint access tokens for local development",
	Long: `Mints a signed access token for a (user, tenant, relationship) scope.

The signing secret comes from DEALGRID_JWT_SECRET and must match the
server's configuration. Intended for local development and testing.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("user", "", "User ID (required)")
	tokenCmd.Flags().String("tenant", "", "Tenant ID (required)")
	tokenCmd.Flags().String("relationship", "", "Relationship ID for relationship-scoped sessions")
	tokenCmd.Flags().Duration("ttl", 15*time.Minute, "Access token lifetime")
	tokenCmd.Flags().String("issuer", "dealgrid-api", "Token issuer")
}

func runToken(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	tenantID, _ := cmd.Flags().GetString("tenant")
	relationshipID, _ := cmd.Flags().GetString("relationship")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	issuer, _ := cmd.Flags().GetString("issuer")

	if userID == "" || tenantID == "" {
		return fmt.Errorf("--user and --tenant are required")
	}

	secret := os.Getenv("DEALGRID_JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("DEALGRID_JWT_SECRET not set")
	}

	gen := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               secret,
		Issuer:               issuer,
		AccessTokenDuration:  ttl,
		RefreshTokenDuration: 24 * time.Hour,
	})

	sessionID := uuid.New().String()
	token, expiresAt, err := gen.GenerateAccessToken(userID, sessionID, jwt.SessionContext{
		TenantID:       tenantID,
		RelationshipID: relationshipID,
	})
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	switch flagOutput {
	case outputJSON:
		printJSON(map[string]any{
			"access_token": token,
			"expires_at":   expiresAt.Format(time.RFC3339),
			"session_id":   sessionID,
		})
	default:
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "Expires: %s\n", expiresAt.Format(time.RFC3339))
	}
	return nil
}
