// ABOUTME: Account endpoint on the auth service
// ABOUTME: Returns the authenticated user's profile and balance

package client

import (
	"context"
	"net/http"
)

// UserDetails is the authenticated user's account record.
type UserDetails struct {
	ID                   string  `json:"id"`
	Email                string  `json:"email"`
	Name                 string  `json:"name"`
	Coins                float64 `json:"coins"`
	SubscriptionStatus   string  `json:"subscription_status"`
	ActivePlanName       *string `json:"active_plan_name"`
	StripeCustomerID     *string `json:"stripe_customer_id"`
	StripeSubscriptionID *string `json:"stripe_subscription_id"`
	Avatar               *string `json:"avatar,omitempty"`
	Verified             bool    `json:"verified"`
}

// PlanName returns the active plan, or "none".
func (u *UserDetails) PlanName() string {
	if u == nil || u.ActivePlanName == nil || *u.ActivePlanName == "" {
		return "none"
	}
	return *u.ActivePlanName
}

// GetMe returns the authenticated user's account details.
// An invalid or expired token yields an error matching ErrUnauthorized.
func (c *Client) GetMe(ctx context.Context) (*UserDetails, error) {
	var me UserDetails
	if err := c.doJSON(ctx, http.MethodGet, c.authURL("/api/v1/users/me"), nil, &me, true); err != nil {
		return nil, err
	}
	return &me, nil
}
