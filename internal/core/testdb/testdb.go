// Package testdb opens an in-memory sqlite database with every IAM table
// migrated. It exists for repository and handler tests.
package testdb

import (
	auditDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/audit"
	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table in creation order.
func Models() []interface{} {
	return []interface{}{
		&userDatamodel.User{},
		&groupDatamodel.Group{},
		&roleDatamodel.Role{},
		&permissionDatamodel.Module{},
		&permissionDatamodel.Permission{},
		&groupDatamodel.UserGroup{},
		&groupDatamodel.GroupRole{},
		&roleDatamodel.RolePermission{},
		&auditDatamodel.AuditLog{},
	}
}

func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// every pooled connection would get its own in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}
	return db, nil
}
