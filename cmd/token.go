package cmd

import (
	"fmt"
	"log"

	"github.com/frahmantamala/expense-approval/internal/auth"

	"github.com/spf13/cobra"
)

var tokenUserID int64

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	Long:  `Sign an access token with auth.jwt_secret, for local testing without a gateway.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if cfg.Auth.JWTSecret == "" {
			log.Fatal("auth.jwt_secret is not set")
		}
		if tokenUserID <= 0 {
			log.Fatal("--user must be a positive user id")
		}

		token, err := auth.NewJWTTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Issue(tokenUserID)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Println(token)
	},
}
