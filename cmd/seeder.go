package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/oemhub/identity-broker/internal/automation"
	"github.com/oemhub/identity-broker/pkg/logger"
)

var (
	seedUsername string
	seedPassword string
	seedName     string
	seedAdmin    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the directory with a bootstrap user",
	Long:  `Provision a remote account on the automation platform and insert the matching directory record. Intended for bootstrapping an admin user in a fresh deployment.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		ctx := context.Background()

		var exists int
		if err := db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE username = $1", seedUsername).Scan(&exists); err == nil {
			fmt.Println("user already exists:", seedUsername)
			return
		}

		// Remote account first, directory record second. Same order the
		// registration path uses, so a failed seed never leaves a directory
		// record without a remote identity.
		client := automation.NewClient(cfg.Automation, logger.L())
		localID := uuid.NewString()
		remoteID, err := client.CreateRemoteUser(ctx, localID, seedName)
		if err != nil {
			log.Fatalf("failed to provision remote user: %v", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		if _, err := db.ExecContext(ctx,
			`INSERT INTO users (local_id, remote_id, username, display_name, password_hash, is_admin, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
			localID, remoteID, seedUsername, seedName, string(hash), seedAdmin); err != nil {
			log.Fatalf("failed to insert user record: %v", err)
		}

		fmt.Println("Seeded user:", seedUsername, "remote_id:", remoteID)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedUsername, "username", "admin", "username for the seeded user")
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "password for the seeded user")
	seedCmd.Flags().StringVar(&seedName, "name", "Administrator", "display name for the seeded user")
	seedCmd.Flags().BoolVar(&seedAdmin, "admin", true, "grant the seeded user the admin role")
}
