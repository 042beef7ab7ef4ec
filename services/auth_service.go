package services

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

// AuthService registers and authenticates accounts. Token issuance lives in
// the middleware package alongside token parsing.
type AuthService struct {
	store *repositories.Store
}

func NewAuthService(store *repositories.Store) *AuthService {
	return &AuthService{store: store}
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	settings, err := s.store.Settings.Get(ctx)
	if err != nil {
		return nil, ErrInternal("Failed to load settings", err)
	}
	if !settings.AllowRegistrations {
		return nil, ErrForbidden("Registrations are currently closed")
	}

	email, err := utils.SanitizeEmail(req.Email)
	if err != nil {
		return nil, ErrBadRequest("Invalid email format")
	}
	if len(req.Password) < 8 {
		return nil, ErrBadRequest("Password must be at least 8 characters")
	}

	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if role != models.RoleCustomer && role != models.RoleMerchant {
		return nil, ErrBadRequest("Invalid role")
	}

	phone := ""
	if req.Phone != "" {
		if phone, err = utils.NormalizeKenyanPhone(req.Phone); err != nil {
			return nil, ErrBadRequest("Invalid phone number")
		}
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, ErrInternal("Failed to hash password", err)
	}

	user := &models.User{
		FirstName: utils.SanitizeInput(req.FirstName),
		LastName:  utils.SanitizeInput(req.LastName),
		Email:     email,
		Password:  hashed,
		Phone:     phone,
		Role:      role,
		IsActive:  true,
	}
	if role == models.RoleMerchant {
		if strings.TrimSpace(req.BusinessName) == "" {
			return nil, ErrBadRequest("Business name is required for merchants")
		}
		user.BusinessName = utils.SanitizeInput(req.BusinessName)
		user.BusinessAddress = utils.SanitizeInput(req.BusinessAddress)
		user.BusinessType = utils.SanitizeInput(req.BusinessType)
		user.VerificationStatus = models.VerificationUnsubmitted
	}

	if err := s.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrBadRequest("Email already registered")
		}
		return nil, ErrInternal("Failed to create user", err)
	}
	return user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.Users.FindByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUnauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load user", err)
	}
	if !utils.CheckPassword(user.Password, password) {
		return nil, ErrUnauthorized("Invalid email or password")
	}
	if !user.IsActive {
		return nil, ErrForbidden("Account is deactivated")
	}
	return user, nil
}

// ActiveUser loads the user behind a token, rejecting suspended accounts
func (s *AuthService) ActiveUser(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.store.Users.FindByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrUnauthorized("User not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load user", err)
	}
	if !user.IsActive {
		return nil, ErrUnauthorized("User account is inactive")
	}
	return user, nil
}

func (s *AuthService) UpdateFCMToken(ctx context.Context, userID primitive.ObjectID, token string) error {
	user, err := s.ActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	user.FCMToken = token
	if err := s.store.Users.Update(ctx, user); err != nil {
		return ErrInternal("Failed to save FCM token", err)
	}
	return nil
}

// Notifications returns the latest inbox entries of a user
func (s *AuthService) Notifications(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	items, err := s.store.Notifications.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, ErrInternal("Failed to load notifications", err)
	}
	return items, nil
}

func (s *AuthService) MarkNotificationRead(ctx context.Context, userID primitive.ObjectID, notificationID string) error {
	id, err := primitive.ObjectIDFromHex(notificationID)
	if err != nil {
		return ErrBadRequest("Invalid notification ID")
	}
	if err := s.store.Notifications.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound("Notification not found")
		}
		return ErrInternal("Failed to update notification", err)
	}
	return nil
}
