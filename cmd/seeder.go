package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/rbac-admin/internal/auth"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/dept"
	sessionDatamodel "github.com/frahmantamala/rbac-admin/internal/core/datamodel/session"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/sysconfig"
	"github.com/frahmantamala/rbac-admin/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-admin/internal/datascope"
	"github.com/frahmantamala/rbac-admin/internal/session"
)

var seedPassword string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed departments, roles, permission menus, users and the login mode setting for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		opts := SeedOptions{
			Password:      seedPassword,
			BCryptCost:    cfg.Security.BCryptCost,
			SuperuserRole: cfg.Security.SuperuserRoleCode,
			Clear:         clearData,
		}
		if err := Seed(context.Background(), gormDB, opts); err != nil {
			log.Fatalf("failed to seed: %v", err)
		}
		fmt.Println("Seeded users admin, manager and jdoe")
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPassword, "password", "password", "password for every seeded user")
}

type SeedOptions struct {
	Password      string
	BCryptCost    int
	SuperuserRole string
	Clear         bool
}

type seedUser struct {
	username string
	realName string
	dept     string
	role     string
}

// Seed is idempotent: rows are matched on their natural keys and left alone
// when they already exist.
func Seed(ctx context.Context, db *gorm.DB, opts SeedOptions) error {
	if opts.SuperuserRole == "" {
		opts.SuperuserRole = "super"
	}
	hash, err := auth.HashPassword(opts.Password, opts.BCryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Clear {
			if err := clearSeedData(tx); err != nil {
				return err
			}
		}

		deptIDs := map[string]int64{}
		for _, d := range []struct{ name, parent string }{
			{"Headquarters", ""},
			{"R&D", "Headquarters"},
			{"Frontend", "R&D"},
			{"Sales", "Headquarters"},
		} {
			row := dept.Dept{Name: d.name, Status: 1}
			if d.parent != "" {
				parentID := deptIDs[d.parent]
				row.ParentID = &parentID
			}
			if err := tx.Where("name = ?", d.name).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed dept %s: %w", d.name, err)
			}
			deptIDs[d.name] = row.ID
		}

		roleIDs := map[string]int64{}
		for _, r := range []user.Role{
			{Code: opts.SuperuserRole, Name: "Super administrator", Status: user.RoleStatusEnabled, DataScope: string(datascope.KindAll)},
			{Code: "admin", Name: "Department administrator", Status: user.RoleStatusEnabled, DataScope: string(datascope.KindDeptAndChildren)},
			{Code: "common", Name: "Staff", Status: user.RoleStatusEnabled, DataScope: string(datascope.KindSelf)},
		} {
			row := r
			if err := tx.Where("code = ?", r.Code).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.Code, err)
			}
			roleIDs[r.Code] = row.ID
		}

		system := user.Menu{Name: "System", Status: user.MenuStatusEnabled}
		if err := tx.Where("name = ? AND auth_code = ''", system.Name).FirstOrCreate(&system).Error; err != nil {
			return fmt.Errorf("seed menu %s: %w", system.Name, err)
		}
		for _, m := range []user.Menu{
			{Name: "Online sessions", AuthCode: auth.PermSessionList},
			{Name: "Kick session", AuthCode: auth.PermSessionKick},
			{Name: "Send notice", AuthCode: auth.PermNoticeSend},
		} {
			row := m
			row.ParentID = &system.ID
			row.Status = user.MenuStatusEnabled
			if err := tx.Where("auth_code = ?", m.AuthCode).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed menu %s: %w", m.AuthCode, err)
			}
			link := user.RoleMenu{RoleID: roleIDs["admin"], MenuID: row.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return fmt.Errorf("grant menu %s: %w", m.AuthCode, err)
			}
		}

		for _, u := range []seedUser{
			{"admin", "Administrator", "Headquarters", opts.SuperuserRole},
			{"manager", "R&D Manager", "R&D", "admin"},
			{"jdoe", "John Doe", "Frontend", "common"},
		} {
			deptID := deptIDs[u.dept]
			row := user.User{
				Username:     u.username,
				PasswordHash: hash,
				RealName:     u.realName,
				IsActive:     true,
				DeptID:       &deptID,
			}
			if err := tx.Where("username = ?", u.username).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", u.username, err)
			}
			link := user.UserRole{UserID: row.ID, RoleID: roleIDs[u.role]}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return fmt.Errorf("grant role %s to %s: %w", u.role, u.username, err)
			}
		}

		mode := sysconfig.Config{
			Key:    session.LoginModeSettingKey,
			Value:  string(session.ModeMulti),
			Status: sysconfig.StatusEnabled,
			Remark: "single or multi",
		}
		if err := tx.Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: mode.Key}).FirstOrCreate(&mode).Error; err != nil {
			return fmt.Errorf("seed login mode: %w", err)
		}
		return nil
	})
}

func clearSeedData(tx *gorm.DB) error {
	for _, model := range []interface{}{
		&sessionDatamodel.UserSession{},
		&user.UserRole{},
		&user.RoleMenu{},
		&user.RoleDept{},
		&user.User{},
		&user.Menu{},
		&user.Role{},
		&dept.Dept{},
		&sysconfig.Config{},
	} {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}
