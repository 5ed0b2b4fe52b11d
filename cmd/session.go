package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	"github.com/frahmantamala/rbac-admin/internal/core/events"
	"github.com/frahmantamala/rbac-admin/internal/session"
	sessionPostgres "github.com/frahmantamala/rbac-admin/internal/session/postgres"
	"github.com/frahmantamala/rbac-admin/pkg/logger"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Session management commands",
	Long:  `Revoke sessions and switch the login mode without going through the HTTP API`,
}

var (
	revokeIDs      []int64
	revokeUsername string
	revokeReason   string
)

var revokeSessionCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke sessions by id or by user",
	Long: `Revoke sessions by id or every active session of a user. Clients learn about the
revocation on their next request; open realtime connections belong to the server process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(revokeIDs) == 0 && revokeUsername == "" {
			return fmt.Errorf("either --id or --user is required")
		}
		return withSessionService(cmd.Context(), func(ctx context.Context, svc *session.Service, repo session.RepositoryAPI, _ *sessionPostgres.SettingRepository) error {
			n, err := RevokeSessions(ctx, svc, repo, revokeIDs, revokeUsername, revokeReason)
			if err != nil {
				return err
			}
			fmt.Printf("revoked %d session(s)\n", n)
			return nil
		})
	},
}

var sessionModeCmd = &cobra.Command{
	Use:   "mode [single|multi]",
	Short: "Show or persist the login mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionService(cmd.Context(), func(ctx context.Context, svc *session.Service, _ session.RepositoryAPI, settings *sessionPostgres.SettingRepository) error {
			if len(args) == 0 {
				fmt.Println(svc.LoginMode(ctx))
				return nil
			}
			mode, ok := session.ParseMode(args[0])
			if !ok {
				return fmt.Errorf("login mode must be single or multi, got %q", args[0])
			}
			if err := settings.Upsert(ctx, session.LoginModeSettingKey, mode.String()); err != nil {
				return fmt.Errorf("persist login mode: %w", err)
			}
			fmt.Printf("login mode set to %s (effective: %s)\n", mode, svc.LoginMode(ctx))
			return nil
		})
	},
}

func init() {
	revokeSessionCmd.Flags().Int64SliceVar(&revokeIDs, "id", nil, "session ids to revoke")
	revokeSessionCmd.Flags().StringVar(&revokeUsername, "user", "", "revoke every active session of this username")
	revokeSessionCmd.Flags().StringVar(&revokeReason, "reason", session.ReasonKicked, "reason shown to the client")

	sessionCmd.AddCommand(revokeSessionCmd)
	sessionCmd.AddCommand(sessionModeCmd)
}

// RevokeSessions revokes the given ids plus every active session whose
// username matches exactly.
func RevokeSessions(ctx context.Context, svc *session.Service, repo session.RepositoryAPI, ids []int64, username, reason string) (int, error) {
	targets := append([]int64{}, ids...)
	if username = strings.TrimSpace(username); username != "" {
		active := sessionDatamodel.StatusActive
		now := time.Now()
		offset := 0
		for {
			rows, total, err := repo.List(ctx, session.ListFilter{Username: username, Status: &active, Now: now, Offset: offset, Limit: 200})
			if err != nil {
				return 0, fmt.Errorf("list sessions of %s: %w", username, err)
			}
			for _, row := range rows {
				if row.Username == username {
					targets = append(targets, row.ID)
				}
			}
			offset += len(rows)
			if len(rows) == 0 || int64(offset) >= total {
				break
			}
		}
	}
	return svc.RevokeSessions(ctx, targets, session.ActorSystem, reason)
}

type sessionCommandFunc func(ctx context.Context, svc *session.Service, repo session.RepositoryAPI, settings *sessionPostgres.SettingRepository) error

func withSessionService(ctx context.Context, fn sessionCommandFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		return err
	}

	lg := logger.L()
	bus := events.NewEventBus(lg)
	defer bus.Wait()

	svc, repo, settings := newSessionService(gormDB, bus, session.Config{
		LoginMode:        cfg.Session.LoginMode,
		LastSeenThrottle: cfg.Session.LastSeenThrottle,
	})
	return fn(ctx, svc, repo, settings)
}

func newSessionService(db *gorm.DB, bus *events.EventBus, cfg session.Config) (*session.Service, session.RepositoryAPI, *sessionPostgres.SettingRepository) {
	repo := sessionPostgres.NewSessionRepository(db)
	settings := sessionPostgres.NewSettingRepository(db)
	return session.NewService(repo, settings, bus, nil, cfg, logger.L()), repo, settings
}
