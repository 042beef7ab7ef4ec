package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

const (
	reminderWindow   = 7 * 24 * time.Hour
	reminderThrottle = 24 * time.Hour
)

// SweepResult summarises one expiry reminder run
type SweepResult struct {
	Checked  int `json:"checked"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// ExpirySweeper reminds vendors before their subscription ends and expires
// subscriptions whose end date has passed.
type ExpirySweeper struct {
	store       *repositories.Store
	mailer      Mailer
	frontendURL string
	now         func() time.Time
}

func NewExpirySweeper(store *repositories.Store, mailer Mailer, frontendURL string) *ExpirySweeper {
	return &ExpirySweeper{store: store, mailer: mailer, frontendURL: frontendURL, now: time.Now}
}

// CheckExpiringSubscriptions emails every vendor whose active subscription
// ends within seven days and who was not reminded in the last day. A failure
// for one vendor is logged and counted; the sweep carries on.
func (s *ExpirySweeper) CheckExpiringSubscriptions(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	subs, err := s.store.Subscriptions.FindExpiring(ctx, now, now.Add(reminderWindow), now.Add(-reminderThrottle))
	if err != nil {
		return nil, ErrInternal("Failed to load expiring subscriptions", err)
	}

	result := &SweepResult{Checked: len(subs)}
	for i := range subs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		sub := &subs[i]
		if err := s.remind(ctx, sub, now); err != nil {
			result.Failed++
			log.Printf("Failed to send renewal reminder for subscription %s: %v", sub.ID.Hex(), err)
			continue
		}
		result.Notified++
	}

	log.Printf("Expiry sweep: %d checked, %d notified, %d failed", result.Checked, result.Notified, result.Failed)
	return result, nil
}

func (s *ExpirySweeper) remind(ctx context.Context, sub *models.VendorSubscription, now time.Time) error {
	vendor, err := s.store.Users.FindByID(ctx, sub.Vendor)
	if err != nil {
		return fmt.Errorf("load vendor: %w", err)
	}
	packageName := "your package"
	if pkg, err := s.store.Packages.FindByID(ctx, sub.Package); err == nil {
		packageName = pkg.Name
	}

	daysLeft := int(sub.EndDate.Sub(now).Hours() / 24)
	body := fmt.Sprintf(`Hello %s,

Your %s subscription on Nairobi Verified expires on %s (%d day(s) left).

Renew now to keep your products listed without interruption:
%s/merchant/subscription

Nairobi Verified`, vendor.FullName(), packageName, sub.EndDate.Format("02 Jan 2006"), daysLeft, s.frontendURL)

	if err := s.mailer.Send(ctx, vendor.Email, "Your Nairobi Verified subscription is expiring soon", body); err != nil {
		return err
	}

	if err := s.store.Subscriptions.MarkReminded(ctx, sub.ID, now); err != nil {
		return fmt.Errorf("stamp reminder: %w", err)
	}
	return nil
}

// ExpireOverdue flips active subscriptions past their end date to expired
func (s *ExpirySweeper) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.Subscriptions.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, ErrInternal("Failed to expire subscriptions", err)
	}
	if n > 0 {
		log.Printf("Expired %d overdue subscription(s)", n)
	}
	return n, nil
}

// Run expires overdue subscriptions and sends reminders once at start and
// then every interval, until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		if _, err := s.ExpireOverdue(runCtx); err != nil {
			log.Printf("Expiry job failed: %v", err)
		}
		if _, err := s.CheckExpiringSubscriptions(runCtx); err != nil {
			log.Printf("Renewal reminder job failed: %v", err)
		}
		cancel()

		select {
		case <-ctx.Done():
			log.Printf("Subscription expiry loop stopped")
			return
		case <-ticker.C:
		}
	}
}
