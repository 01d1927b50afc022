package services

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"settlement-service/internal/database"
)

const maxTxAttempts = 3

// errStaleTransition means the row was no longer in the expected status.
var errStaleTransition = errors.New("status transition lost to a concurrent writer")

// transitionOnce moves one row from a status to another with a conditional
// update. The storage engine decides who wins; the loser sees zero rows.
func transitionOnce(tx *gorm.DB, model interface{}, id interface{}, from, to interface{}, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(model).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleTransition
	}
	return nil
}

// inTx runs fn in a transaction and reruns it when the database aborted it
// as a deadlock victim. fn must not leak state from a failed attempt.
func inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if !database.IsDeadlock(err) {
			return err
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Transaction deadlocked, retrying")
	}
	return err
}
