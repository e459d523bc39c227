// Package ledger keeps every financial account's stored balance consistent
// with the transactions recorded against it.
//
// Each operation runs in exactly one database transaction: the transaction
// row and the account balance row change together or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/database"
	"household-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = apperr.Validation("insufficient balance in account")
	ErrKindMismatch        = apperr.Validation("transaction kind does not match category kind")
	ErrCategoryNotFound    = apperr.NotFound("category not found or inactive")
	ErrAccountNotFound     = apperr.NotFound("account not found or inactive")
	ErrTransactionNotFound = apperr.NotFound("transaction not found")
	ErrConcurrentUpdate    = apperr.Conflict("account was modified concurrently, retry")
)

// Scope identifies the caller. All reads and writes are limited to its
// master account.
type Scope struct {
	MasterAccountID uint
	UserID          uint
}

// CreateInput describes a new transaction. Amount must already be validated.
type CreateInput struct {
	Kind             string
	Amount           decimal.Decimal
	CategoryID       uint
	AccountID        uint
	Date             time.Time
	Notes            string
	ReceiptReference string
}

// UpdateInput carries the fields supplied by an update; nil means unchanged.
type UpdateInput struct {
	Kind             *string
	Amount           *decimal.Decimal
	CategoryID       *uint
	AccountID        *uint
	Date             *time.Time
	Notes            *string
	ReceiptReference *string
}

// touchesBalance reports whether the update needs the balance path.
func (in UpdateInput) touchesBalance() bool {
	return in.Kind != nil || in.Amount != nil || in.AccountID != nil
}

type Ledger struct {
	db  *gorm.DB
	log *logrus.Logger
}

func New(db *gorm.DB, log *logrus.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// Create records a transaction and applies its signed contribution.
func (l *Ledger) Create(ctx context.Context, scope Scope, in CreateInput) (*models.Transaction, error) {
	var out models.Transaction

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := activeCategory(tx, scope, in.CategoryID)
		if err != nil {
			return err
		}
		if cat.Kind != in.Kind {
			return ErrKindMismatch
		}

		acc, err := lockAccount(tx, scope, in.AccountID)
		if err != nil {
			return err
		}
		if !acc.Active {
			return ErrAccountNotFound
		}

		if err := applyDelta(tx, acc, models.Signed(in.Kind, in.Amount)); err != nil {
			return err
		}

		out = models.Transaction{
			MasterAccountID:  scope.MasterAccountID,
			UserID:           scope.UserID,
			Kind:             in.Kind,
			Amount:           in.Amount,
			CategoryID:       cat.ID,
			AccountID:        acc.ID,
			Date:             in.Date,
			Notes:            in.Notes,
			ReceiptReference: in.ReceiptReference,
		}
		if err := tx.Omit(clause.Associations).Create(&out).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"master_account_id": scope.MasterAccountID,
		"transaction_id":    out.ID,
		"account_id":        out.AccountID,
		"kind":              out.Kind,
		"amount":            out.Amount.StringFixed(2),
	}).Info("transaction created")
	return &out, nil
}

// Update changes a transaction. When kind, amount or account change, the old
// contribution is reverted and the new one applied in the same unit; if any
// touched account would end negative nothing is written.
func (l *Ledger) Update(ctx context.Context, scope Scope, id uint, in UpdateInput) (*models.Transaction, error) {
	var out models.Transaction

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx).
			Where("id = ? AND master_account_id = ?", id, scope.MasterAccountID).
			First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		old := out

		if in.Kind != nil {
			out.Kind = *in.Kind
		}
		if in.Amount != nil {
			out.Amount = *in.Amount
		}

		// category: revalidated when it or the kind is supplied
		if in.CategoryID != nil {
			cat, err := activeCategory(tx, scope, *in.CategoryID)
			if err != nil {
				return err
			}
			if cat.Kind != out.Kind {
				return ErrKindMismatch
			}
			out.CategoryID = cat.ID
		} else if in.Kind != nil {
			var cat models.Category
			if err := tx.Where("id = ? AND master_account_id = ?", out.CategoryID, scope.MasterAccountID).
				First(&cat).Error; err != nil {
				return fmt.Errorf("load category: %w", err)
			}
			if cat.Kind != out.Kind {
				return ErrKindMismatch
			}
		}

		if in.AccountID != nil {
			out.AccountID = *in.AccountID
		}

		if in.touchesBalance() {
			deltas := map[uint]decimal.Decimal{}
			deltas[old.AccountID] = deltas[old.AccountID].Sub(old.Contribution())
			deltas[out.AccountID] = deltas[out.AccountID].Add(out.Contribution())

			if err := l.applyDeltas(tx, scope, deltas, in.AccountID); err != nil {
				return err
			}
		}

		if in.Date != nil {
			out.Date = *in.Date
		}
		if in.Notes != nil {
			out.Notes = *in.Notes
		}
		if in.ReceiptReference != nil {
			out.ReceiptReference = *in.ReceiptReference
		}

		out.UpdatedAt = time.Now()
		if err := tx.Model(&models.Transaction{}).Where("id = ?", out.ID).Updates(map[string]interface{}{
			"kind":              out.Kind,
			"amount":            out.Amount,
			"category_id":       out.CategoryID,
			"account_id":        out.AccountID,
			"date":              out.Date,
			"notes":             out.Notes,
			"receipt_reference": out.ReceiptReference,
			"updated_at":        out.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"master_account_id": scope.MasterAccountID,
		"transaction_id":    out.ID,
		"account_id":        out.AccountID,
		"balance_path":      in.touchesBalance(),
	}).Info("transaction updated")
	return &out, nil
}

// Delete reverts a transaction's contribution and removes it.
func (l *Ledger) Delete(ctx context.Context, scope Scope, id uint) error {
	var txn models.Transaction

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx).
			Where("id = ? AND master_account_id = ?", id, scope.MasterAccountID).
			First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("load transaction: %w", err)
		}

		acc, err := lockAccount(tx, scope, txn.AccountID)
		if err != nil {
			return err
		}
		if err := applyDelta(tx, acc, txn.Contribution().Neg()); err != nil {
			return err
		}

		if err := tx.Delete(&models.Transaction{}, txn.ID).Error; err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.log.WithFields(logrus.Fields{
		"master_account_id": scope.MasterAccountID,
		"transaction_id":    txn.ID,
		"account_id":        txn.AccountID,
	}).Info("transaction deleted")
	return nil
}

// applyDeltas writes netted per-account deltas in ascending id order so two
// concurrent moves between the same accounts lock rows in the same order.
// newAccountID, when set, must name an active account.
func (l *Ledger) applyDeltas(tx *gorm.DB, scope Scope, deltas map[uint]decimal.Decimal, newAccountID *uint) error {
	ids := make([]uint, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		acc, err := lockAccount(tx, scope, id)
		if err != nil {
			return err
		}
		if newAccountID != nil && id == *newAccountID && !acc.Active {
			return ErrAccountNotFound
		}
		if deltas[id].IsZero() {
			continue
		}
		if err := applyDelta(tx, acc, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

func lockScoped(tx *gorm.DB) *gorm.DB {
	if database.SupportsRowLocks(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func activeCategory(tx *gorm.DB, scope Scope, id uint) (*models.Category, error) {
	var cat models.Category
	err := tx.Where("id = ? AND master_account_id = ? AND active = ?", id, scope.MasterAccountID, true).
		First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load category: %w", err)
	}
	return &cat, nil
}

// lockAccount loads a tenant account, locking the row where supported.
// Inactive accounts are returned; callers decide whether that matters.
func lockAccount(tx *gorm.DB, scope Scope, id uint) (*models.Account, error) {
	var acc models.Account
	err := lockScoped(tx).
		Where("id = ? AND master_account_id = ?", id, scope.MasterAccountID).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acc, nil
}

// applyDelta adds delta to acc's balance. The write is guarded by the row
// version so a concurrent writer that slipped past the lock is detected.
func applyDelta(tx *gorm.DB, acc *models.Account, delta decimal.Decimal) error {
	next := acc.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}

	res := tx.Model(&models.Account{}).
		Where("id = ? AND version = ?", acc.ID, acc.Version).
		Updates(map[string]interface{}{
			"balance": next,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	acc.Balance = next
	acc.Version++
	return nil
}
