/*
Copyright 2024 Reel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// CreateCheckout registers a pending recharge for a checkout session
// the client is about to pay.
type CreateCheckout struct {
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (c *CreateCheckout) ValidateCreateCheckout() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required),
		validation.Field(&c.SessionID, validation.Required),
		validation.Field(&c.Amount, validation.By(func(value interface{}) error {
			amount, ok := value.(decimal.Decimal)
			if !ok || !amount.IsPositive() {
				return errors.New("amount must be positive")
			}
			return nil
		})),
	)
}

// FinalizePayment asks the server to settle a checkout session.
type FinalizePayment struct {
	SessionID string `json:"session_id"`
}

func (f *FinalizePayment) ValidateFinalizePayment() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.SessionID, validation.Required),
	)
}

// StartRender requests a single paid render.
type StartRender struct {
	UserID   string `json:"user_id"`
	ModelID  string `json:"model_id"`
	Prompt   string `json:"prompt"`
	DeviceID string `json:"device_id,omitempty"`
	IPHash   string `json:"ip_hash,omitempty"`
}

func (s *StartRender) ValidateStartRender() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.UserID, validation.Required),
		validation.Field(&s.ModelID, validation.Required),
		validation.Field(&s.Prompt, validation.Required, validation.Length(1, 4000)),
	)
}

// CreateBatch requests an enterprise batch, one child render per prompt.
type CreateBatch struct {
	UserID        string   `json:"user_id"`
	ModelID       string   `json:"model_id"`
	Prompts       []string `json:"prompts"`
	WebhookURL    string   `json:"webhook_url,omitempty"`
	WebhookSecret string   `json:"webhook_secret,omitempty"`
	DeviceID      string   `json:"device_id,omitempty"`
	IPHash        string   `json:"ip_hash,omitempty"`
}

func (b *CreateBatch) ValidateCreateBatch() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.UserID, validation.Required),
		validation.Field(&b.ModelID, validation.Required),
		validation.Field(&b.Prompts, validation.Required, validation.Length(1, 100)),
		validation.Field(&b.WebhookURL, is.URL),
	)
}

// AdminAdjust applies a signed manual wallet correction.
type AdminAdjust struct {
	DeltaPermanent int64  `json:"delta_permanent"`
	DeltaBonus     int64  `json:"delta_bonus"`
	Reason         string `json:"reason"`
}

func (a *AdminAdjust) ValidateAdminAdjust() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Reason, validation.Required),
		validation.Field(&a.DeltaPermanent, validation.By(func(interface{}) error {
			if a.DeltaPermanent == 0 && a.DeltaBonus == 0 {
				return errors.New("at least one of delta_permanent or delta_bonus must be non-zero")
			}
			return nil
		})),
	)
}
