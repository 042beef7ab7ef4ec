package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

const qrSize = 256

// MerchantService runs merchant verification and the public merchant badge
type MerchantService struct {
	store       *repositories.Store
	files       FileStore
	notifier    *Notifier
	frontendURL string
	now         func() time.Time
}

func NewMerchantService(store *repositories.Store, files FileStore, notifier *Notifier, frontendURL string) *MerchantService {
	return &MerchantService{
		store:       store,
		files:       files,
		notifier:    notifier,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

func (s *MerchantService) loadMerchant(ctx context.Context, merchantID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(merchantID)
	if err != nil {
		return nil, ErrBadRequest("Invalid merchant ID")
	}
	user, err := s.store.Users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Merchant not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load merchant", err)
	}
	if !user.IsMerchant() {
		return nil, ErrNotFound("Merchant not found")
	}
	return user, nil
}

// SubmitDocument stores a verification document and queues the merchant for review
func (s *MerchantService) SubmitDocument(ctx context.Context, p Principal, docType, filename string, data []byte) (*models.User, error) {
	if !p.IsMerchant() {
		return nil, ErrForbidden("Only merchants can submit verification documents")
	}
	if docType == "" {
		return nil, ErrBadRequest("Document type is required")
	}
	if len(data) > utils.MaxFileSize {
		return nil, ErrBadRequest("File too large")
	}
	if err := utils.ValidateFileType(utils.CleanFilename(filename), "document"); err != nil {
		return nil, ErrBadRequest(err.Error())
	}

	merchant, err := s.loadMerchant(ctx, p.UserID.Hex())
	if err != nil {
		return nil, err
	}

	key := utils.UniqueKey("documents/"+merchant.ID.Hex(), filename)
	url, err := s.files.Save(ctx, key, data, utils.ContentTypeFor(filename))
	if err != nil {
		return nil, ErrInternal("Failed to store document", err)
	}

	merchant.Documents = append(merchant.Documents, models.MerchantDocument{
		Type:       utils.SanitizeInput(docType),
		URL:        url,
		UploadedAt: s.now(),
	})
	if merchant.VerificationStatus != models.VerificationVerified {
		merchant.VerificationStatus = models.VerificationPending
		merchant.RejectionReason = ""
	}
	if err := s.store.Users.Update(ctx, merchant); err != nil {
		return nil, ErrInternal("Failed to save document", err)
	}

	s.notifier.NotifyAdmins(ctx, events.MerchantDocumentsSubmitted,
		fmt.Sprintf("%s submitted verification documents", merchant.BusinessName),
		map[string]string{"merchantId": merchant.ID.Hex()})
	return merchant, nil
}

// Verify marks a merchant verified. The email is sent in the background and
// its failure never affects the result.
func (s *MerchantService) Verify(ctx context.Context, merchantID string) (*models.User, error) {
	merchant, err := s.loadMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	merchant.VerificationStatus = models.VerificationVerified
	merchant.IsVerified = true
	merchant.VerifiedAt = &now
	merchant.RejectionReason = ""
	if err := s.store.Users.Update(ctx, merchant); err != nil {
		return nil, ErrInternal("Failed to verify merchant", err)
	}

	data := map[string]string{"merchantId": merchant.ID.Hex()}
	s.notifier.NotifyUser(ctx, merchant.ID, events.MerchantVerified, "Account verified",
		"Your business is now Nairobi Verified.", data)
	s.notifier.NotifyAdmins(ctx, events.MerchantVerified, fmt.Sprintf("%s was verified", merchant.BusinessName), data)
	s.emailAsync(ctx, merchant.Email, "Your business is now verified", fmt.Sprintf(`Hello %s,

Congratulations! %s has been verified on Nairobi Verified.
Your verified badge is live at %s/merchants/%s

Nairobi Verified`, merchant.FullName(), merchant.BusinessName, s.frontendURL, merchant.ID.Hex()))
	return merchant, nil
}

// Reject records why verification failed so the merchant can resubmit
func (s *MerchantService) Reject(ctx context.Context, merchantID, reason string) (*models.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrBadRequest("Rejection reason is required")
	}
	merchant, err := s.loadMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	merchant.VerificationStatus = models.VerificationRejected
	merchant.IsVerified = false
	merchant.VerifiedAt = nil
	merchant.RejectionReason = utils.SanitizeInput(reason)
	if err := s.store.Users.Update(ctx, merchant); err != nil {
		return nil, ErrInternal("Failed to reject merchant", err)
	}

	data := map[string]string{"merchantId": merchant.ID.Hex()}
	s.notifier.NotifyUser(ctx, merchant.ID, events.MerchantRejected, "Verification rejected", merchant.RejectionReason, data)
	s.notifier.NotifyAdmins(ctx, events.MerchantRejected, fmt.Sprintf("%s was rejected", merchant.BusinessName), data)
	s.emailAsync(ctx, merchant.Email, "Verification update", fmt.Sprintf(`Hello %s,

We could not verify %s for the following reason:

%s

You can upload new documents from your dashboard at %s/merchant/verification

Nairobi Verified`, merchant.FullName(), merchant.BusinessName, reason, s.frontendURL))
	return merchant, nil
}

func (s *MerchantService) emailAsync(ctx context.Context, to, subject, body string) {
	go func() {
		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		s.notifier.Email(mailCtx, to, subject, body)
	}()
}

// List returns merchants for the admin dashboard
func (s *MerchantService) List(ctx context.Context, verificationStatus, search string, page repositories.Page) ([]models.User, int64, error) {
	users, total, err := s.store.Users.List(ctx, repositories.UserFilter{
		Role:               models.RoleMerchant,
		VerificationStatus: verificationStatus,
		Search:             search,
		Page:               page,
	})
	if err != nil {
		return nil, 0, ErrInternal("Failed to list merchants", err)
	}
	return users, total, nil
}

// PublicProfile returns an active merchant without private details
func (s *MerchantService) PublicProfile(ctx context.Context, merchantID string) (*models.User, error) {
	merchant, err := s.loadMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if !merchant.IsActive {
		return nil, ErrNotFound("Merchant not found")
	}
	merchant.Documents = nil
	merchant.RejectionReason = ""
	merchant.Email = ""
	return merchant, nil
}

// BadgeQRCode renders the QR code linking to a verified merchant's page
func (s *MerchantService) BadgeQRCode(ctx context.Context, merchantID string) ([]byte, error) {
	merchant, err := s.loadMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if !merchant.IsVerified {
		return nil, ErrNotFound("Merchant is not verified")
	}
	png, err := utils.GenerateQRCode(fmt.Sprintf("%s/merchants/%s", s.frontendURL, merchant.ID.Hex()), qrSize)
	if err != nil {
		return nil, ErrInternal("Failed to generate QR code", err)
	}
	return png, nil
}
