package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

// AccountProvider creates connected accounts and onboarding links.
type AccountProvider interface {
	CreateConnectAccount(ctx context.Context, req stripe.ConnectAccountRequest) (*stripe.ConnectAccountResult, error)
	OnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

// PayoutAccount is the onboarding state returned to the caller.
type PayoutAccount struct {
	UserID        uuid.UUID `json:"userId"`
	AccountID     string    `json:"accountId"`
	OnboardingURL string    `json:"onboardingUrl"`
	Created       bool      `json:"created"`
}

type Service struct {
	repo     *Repository
	provider AccountProvider
}

func NewService(repo *Repository, provider AccountProvider) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if provider == nil {
		return nil, fmt.Errorf("account provider required")
	}
	return &Service{repo: repo, provider: provider}, nil
}

// ConnectPayoutAccount creates an Express account for farmers and drivers that
// lack one and returns a fresh onboarding link either way.
func (s *Service) ConnectPayoutAccount(ctx context.Context, userID uuid.UUID, refreshURL, returnURL string) (*PayoutAccount, error) {
	if userID == uuid.Nil || strings.TrimSpace(refreshURL) == "" || strings.TrimSpace(returnURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id, refresh url and return url required")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	if user.Role != enums.UserRoleFarmer && user.Role != enums.UserRoleDriver {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only farmers and drivers receive payouts").
			WithDetails(map[string]any{"role": user.Role.String()})
	}

	if user.StripeAccountID != nil && *user.StripeAccountID != "" {
		url, err := s.provider.OnboardingLink(ctx, *user.StripeAccountID, refreshURL, returnURL)
		if err != nil {
			return nil, err
		}
		return &PayoutAccount{UserID: userID, AccountID: *user.StripeAccountID, OnboardingURL: url}, nil
	}

	acct, err := s.provider.CreateConnectAccount(ctx, stripe.ConnectAccountRequest{
		Email:      user.Email,
		Metadata:   map[string]string{"user_id": userID.String(), "role": user.Role.String()},
		RefreshURL: refreshURL,
		ReturnURL:  returnURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetStripeAccountID(ctx, userID, acct.AccountID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payout account")
	}
	return &PayoutAccount{
		UserID:        userID,
		AccountID:     acct.AccountID,
		OnboardingURL: acct.OnboardingURL,
		Created:       true,
	}, nil
}

// PayoutDestination returns the connected account a payee is paid into.
func (s *Service) PayoutDestination(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", mapUserErr(err)
	}
	if user.StripeAccountID == nil || *user.StripeAccountID == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payout account not connected").
			WithDetails(map[string]any{"userId": userID})
	}
	return *user.StripeAccountID, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}
