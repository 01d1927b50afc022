package database

import (
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"settlement-service/internal/config"
	"settlement-service/internal/models"
)

var DB *gorm.DB

// Connect opens the MySQL connection and stores it in DB.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	DB = db
	log.WithFields(log.Fields{"host": cfg.DBHost, "database": cfg.DBName}).Info("Database connection established")
	return db, nil
}

// Migrate creates or updates every table, including the unique indexes the
// settlement and ledger paths rely on.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Game{},
		&models.GameDay{},
		&models.Bet{},
		&models.GameResult{},
		&models.Wallet{},
		&models.LedgerBatch{},
		&models.LedgerEntry{},
		&models.FinancialRequest{},
	)
	if err != nil {
		return err
	}
	log.Info("Database migration completed")
	return nil
}

// IsUniqueViolation reports whether err came from a unique index. Dialectors
// that translate errors return gorm.ErrDuplicatedKey; the message checks cover
// those that do not.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsDeadlock reports whether MySQL rolled the transaction back to break a
// deadlock or lock wait. Nothing it did was committed, so it can be retried.
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1213") || strings.Contains(msg, "Error 1205") ||
		strings.Contains(msg, "Deadlock found")
}
