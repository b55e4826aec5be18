package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smartmonitor/internal/models"
)

// TokenRepository is the postgres Store.
type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// RecordTrackedMint inserts the mint. Calls for an active mint are no-ops,
// an inactive mint is reactivated under the new owner.
func (r *TokenRepository) RecordTrackedMint(ctx context.Context, mint, owner, ruleName string) error {
	if mint == "" || owner == "" {
		return ErrInvalidInput
	}
	token := models.SplToken{
		Mint:          mint,
		SmartAddress:  owner,
		MonitorStatus: models.MonitorStatusActive,
		StrategyName:  ruleName,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mint"}},
			DoUpdates: clause.AssignmentColumns([]string{"smart_address", "monitor_status", "strategy_name", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: token.TableName(), Name: "monitor_status"}, Value: models.MonitorStatusActive},
			}},
		}).
		Create(&token).Error
	if err != nil {
		return fmt.Errorf("failed to record tracked mint %s: %w", mint, err)
	}
	return nil
}

func (r *TokenRepository) ListTrackedMints(ctx context.Context, f TrackedMintFilter) ([]models.SplToken, error) {
	query := r.db.WithContext(ctx).Model(&models.SplToken{})
	if f.SmartAddress != "" {
		query = query.Where("smart_address = ?", f.SmartAddress)
	}
	if f.Status != "" {
		query = query.Where("monitor_status = ?", f.Status)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var tokens []models.SplToken
	if err := query.Order("created_at DESC").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked mints: %w", err)
	}
	return tokens, nil
}

func (r *TokenRepository) DeactivateMint(ctx context.Context, mint string) error {
	res := r.db.WithContext(ctx).
		Model(&models.SplToken{}).
		Where("mint = ?", mint).
		Update("monitor_status", models.MonitorStatusInactive)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate mint %s: %w", mint, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddAccount inserts address or restores it when it was deleted.
func (r *TokenRepository) AddAccount(ctx context.Context, address string) (*models.Account, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)
	account := models.Account{Account: address}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"deleted": false}),
	}).Create(&account).Error
	if err != nil {
		return nil, fmt.Errorf("failed to add account %s: %w", address, err)
	}

	var stored models.Account
	if err := db.Where("account = ?", address).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", address, err)
	}
	return &stored, nil
}

func (r *TokenRepository) DeleteAccount(ctx context.Context, address string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("account = ? AND deleted = ?", address, false).
		Update("deleted", true)
	if res.Error != nil {
		return fmt.Errorf("failed to delete account %s: %w", address, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TokenRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).Where("deleted = ?", false).Order("id").Find(&accounts).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

var _ Store = (*TokenRepository)(nil)
