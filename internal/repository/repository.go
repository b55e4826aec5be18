package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"smartmonitor/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// TrackedMintFilter narrows ListTrackedMints. Zero fields match everything.
type TrackedMintFilter struct {
	SmartAddress string
	Status       string
	Limit        int
}

// Store persists tracked mints and monitored accounts.
type Store interface {
	RecordTrackedMint(ctx context.Context, mint, owner, ruleName string) error
	ListTrackedMints(ctx context.Context, f TrackedMintFilter) ([]models.SplToken, error)
	DeactivateMint(ctx context.Context, mint string) error

	AddAccount(ctx context.Context, address string) (*models.Account, error)
	DeleteAccount(ctx context.Context, address string) error
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// ValidateAddress checks address is a base58 encoded 32-byte public key.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: %q is not a valid address", ErrInvalidInput, address)
	}
	return nil
}
