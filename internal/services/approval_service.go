package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-service/internal/database"
	"settlement-service/internal/models"
	"settlement-service/pkg/common"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// ledgerEffect builds the entries an approved request books on its wallet.
type ledgerEffect func(s *ApprovalService, w models.Wallet, req models.FinancialRequest) ([]Entry, error)

// kindSpec describes one request kind: its code prefix and its ledger effect.
type kindSpec struct {
	prefix string
	effect ledgerEffect
}

var requestKinds = map[models.RequestKind]kindSpec{
	models.RequestKindWithdrawal: {
		prefix: "WD",
		effect: func(s *ApprovalService, w models.Wallet, req models.FinancialRequest) ([]Entry, error) {
			return planDebit(w, s.WithdrawalOrder, req.Amount, models.ReasonWithdrawalDebit)
		},
	},
	models.RequestKindDeposit: {
		prefix: "DP",
		effect: func(_ *ApprovalService, w models.Wallet, req models.FinancialRequest) ([]Entry, error) {
			return []Entry{{
				WalletID: w.ID,
				Segment:  models.SegmentDeposit,
				Amount:   req.Amount,
				Reason:   models.ReasonDepositCredit,
			}}, nil
		},
	},
}

// ApprovalService moves withdrawal and deposit requests out of pending and
// books their ledger effect in the same transaction.
type ApprovalService struct {
	DB              *gorm.DB
	Ledger          *LedgerService
	Dispatcher      Dispatcher
	WithdrawalOrder []models.Segment
	MinWithdrawal   decimal.Decimal
	MaxWithdrawal   decimal.Decimal
	Now             func() time.Time
}

func NewApprovalService(db *gorm.DB, ledger *LedgerService, withdrawalOrder []models.Segment, minWithdrawal, maxWithdrawal decimal.Decimal) *ApprovalService {
	return &ApprovalService{
		DB:              db,
		Ledger:          ledger,
		Dispatcher:      noopDispatcher{},
		WithdrawalOrder: withdrawalOrder,
		MinWithdrawal:   minWithdrawal,
		MaxWithdrawal:   maxWithdrawal,
		Now:             time.Now,
	}
}

type ReviewInput struct {
	RequestID  uint
	Action     string
	ReviewerID string
	Notes      string
}

type ReviewResult struct {
	Request models.FinancialRequest `json:"request"`
	Ledger  *AppliedResult          `json:"ledger,omitempty"`
}

// Review approves or rejects a pending request. Exactly one review wins; the
// others get ErrAlreadyReviewed and change nothing.
func (s *ApprovalService) Review(ctx context.Context, in ReviewInput) (*ReviewResult, error) {
	in.ReviewerID = strings.TrimSpace(in.ReviewerID)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.ReviewerID == "" {
		return nil, ErrActorRequired
	}
	var to models.RequestStatus
	switch in.Action {
	case ActionApprove:
		to = models.RequestStatusApproved
	case ActionReject:
		to = models.RequestStatusRejected
		if in.Notes == "" {
			return nil, ErrNotesRequired
		}
	default:
		return nil, ErrInvalidAction
	}

	now := s.Now()
	var out ReviewResult
	err := inTx(ctx, s.DB, func(tx *gorm.DB) error {
		out = ReviewResult{}
		var req models.FinancialRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, in.RequestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if req.Status != models.RequestStatusPending {
			return ErrAlreadyReviewed
		}

		err := transitionOnce(tx, &models.FinancialRequest{}, req.ID, models.RequestStatusPending, to, map[string]interface{}{
			"reviewed_by": in.ReviewerID,
			"reviewed_at": now,
			"admin_notes": in.Notes,
		})
		if errors.Is(err, errStaleTransition) {
			return ErrAlreadyReviewed
		}
		if err != nil {
			return err
		}

		if to == models.RequestStatusApproved {
			kind, ok := requestKinds[req.Kind]
			if !ok {
				return fmt.Errorf("%w: request %d has unknown kind %q", ErrInsufficientSystemState, req.ID, req.Kind)
			}
			wallet, err := lockWallet(tx, req.WalletId)
			if err != nil {
				return err
			}
			entries, err := kind.effect(s, *wallet, req)
			if err != nil {
				return err
			}
			applied, err := s.Ledger.ApplyEntriesTx(tx, RequestRef(req.ID), entries)
			if err != nil {
				return err
			}
			if applied.Replayed {
				return fmt.Errorf("%w: request %d was already booked", ErrInsufficientSystemState, req.ID)
			}
			out.Ledger = applied
		}

		return tx.First(&out.Request, req.ID).Error
	})
	if err != nil {
		log.WithFields(log.Fields{
			"request_id": in.RequestID,
			"action":     in.Action,
			"reviewer":   in.ReviewerID,
			"code":       CodeOf(err),
		}).WithError(err).Warn("Request review failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"request_id": out.Request.ID,
		"code":       out.Request.Code,
		"kind":       out.Request.Kind,
		"status":     out.Request.Status,
		"amount":     out.Request.Amount.String(),
		"reviewer":   in.ReviewerID,
	}).Info("Request reviewed")

	if out.Ledger != nil && s.Dispatcher != nil {
		if err := s.Dispatcher.ReconcileWallets(ctx, out.Request.WalletId); err != nil {
			log.WithError(err).WithField("wallet_id", out.Request.WalletId).Error("Failed to enqueue wallet reconcile")
		}
	}
	return &out, nil
}

type CreateRequestInput struct {
	UserId   int
	Kind     models.RequestKind
	Amount   decimal.Decimal
	Evidence map[string]interface{}
}

// CreateRequest files a pending withdrawal or deposit for a user. Funds are
// only checked here as a courtesy; approval re-checks under lock.
func (s *ApprovalService) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.FinancialRequest, error) {
	kind, ok := requestKinds[in.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown request kind %q", ErrInvalidAmount, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if err := checkScale(in.Amount, "amount"); err != nil {
		return nil, err
	}
	if in.Kind == models.RequestKindWithdrawal {
		if in.Amount.LessThan(s.MinWithdrawal) {
			return nil, fmt.Errorf("%w: minimum withdrawal is %s", ErrInvalidAmount, s.MinWithdrawal)
		}
		if s.MaxWithdrawal.IsPositive() && in.Amount.GreaterThan(s.MaxWithdrawal) {
			return nil, fmt.Errorf("%w: maximum withdrawal is %s", ErrInvalidAmount, s.MaxWithdrawal)
		}
	}

	var wallet models.Wallet
	if err := s.DB.WithContext(ctx).Where("user_id = ?", in.UserId).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if in.Kind == models.RequestKindWithdrawal {
		if _, err := planDebit(wallet, s.WithdrawalOrder, in.Amount, models.ReasonWithdrawalDebit); err != nil {
			return nil, err
		}
	}

	var evidence datatypes.JSON
	if len(in.Evidence) > 0 {
		raw, err := json.Marshal(in.Evidence)
		if err != nil {
			return nil, fmt.Errorf("%w: evidence is not valid JSON", ErrInvalidAmount)
		}
		evidence = raw
	}

	req := models.FinancialRequest{
		Kind:     in.Kind,
		UserId:   in.UserId,
		WalletId: wallet.ID,
		Amount:   in.Amount,
		Status:   models.RequestStatusPending,
		Evidence: evidence,
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		req.ID = 0
		req.Code = kind.prefix + common.GenerateTrxNo()
		err = s.DB.WithContext(ctx).Create(&req).Error
		if err == nil || !database.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"request_id": req.ID,
		"code":       req.Code,
		"kind":       req.Kind,
		"user_id":    req.UserId,
		"amount":     req.Amount.String(),
	}).Info("Request created")
	return &req, nil
}

type RequestFilter struct {
	UserId int
	Kind   models.RequestKind
	Status models.RequestStatus
	Page   int
	Limit  int
}

func (s *ApprovalService) ListRequests(ctx context.Context, f RequestFilter) ([]models.FinancialRequest, int64, error) {
	f.Page, f.Limit = common.NormalizePage(f.Page, f.Limit)
	q := s.DB.WithContext(ctx).Model(&models.FinancialRequest{})
	if f.UserId > 0 {
		q = q.Where("user_id = ?", f.UserId)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []models.FinancialRequest
	err := q.Order("created_at DESC").Order("id DESC").Scopes(common.Paginate(f.Page, f.Limit)).Find(&reqs).Error
	return reqs, total, err
}

func (s *ApprovalService) GetRequest(ctx context.Context, id uint) (*models.FinancialRequest, error) {
	var req models.FinancialRequest
	if err := s.DB.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}
