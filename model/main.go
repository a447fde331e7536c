package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hancat/sora2api/common"
)

var DB *gorm.DB

var (
	UsingSQLite     = false
	UsingPostgreSQL = false
	UsingMySQL      = false
)

func InitDB() (err error) {
	db, err := chooseDB()
	if err == nil {
		if common.DebugEnabled {
			db = db.Debug()
		}
		DB = db
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxIdleConns(common.GetEnvOrDefault("SQL_MAX_IDLE_CONNS", 100))
		sqlDB.SetMaxOpenConns(common.GetEnvOrDefault("SQL_MAX_OPEN_CONNS", 1000))
		sqlDB.SetConnMaxLifetime(time.Second * time.Duration(common.GetEnvOrDefault("SQL_MAX_LIFETIME", 60)))
		return migrateDB()
	}
	common.FatalLog(err)
	return err
}

func chooseDB() (*gorm.DB, error) {
	if dsn := os.Getenv("SQL_DSN"); dsn != "" {
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			common.SysLog("using PostgreSQL as database")
			UsingPostgreSQL = true
			return gorm.Open(postgres.New(postgres.Config{
				DSN:                  dsn,
				PreferSimpleProtocol: true, // disables implicit prepared statement usage
			}), &gorm.Config{
				PrepareStmt: true,
			})
		}
		common.SysLog("using MySQL as database")
		UsingMySQL = true
		return gorm.Open(mysql.Open(dsn), &gorm.Config{
			PrepareStmt: true,
		})
	}
	common.SysLog("SQL_DSN not set, using SQLite as database")
	UsingSQLite = true
	path := common.GetEnvOrDefaultString("SQLITE_PATH", "data/hancat.db")
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	config := fmt.Sprintf("?_busy_timeout=%d", common.GetEnvOrDefault("SQLITE_BUSY_TIMEOUT", 3000))
	return gorm.Open(sqlite.Open(path+config), &gorm.Config{
		PrepareStmt: true,
	})
}

func migrateDB() error {
	if err := DB.AutoMigrate(
		&Account{},
		&AccountStats{},
		&RequestLog{},
	); err != nil {
		return err
	}
	common.SysLog("database migrated")
	return nil
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
