/*
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

// Package stripepay confirms payments against Stripe. Finalization never
// trusts a client-supplied status; the checkout session is always
// re-read from the processor.
package stripepay

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
)

// PaymentStatus is the processor's view of one checkout session.
type PaymentStatus struct {
	SessionID string
	Paid      bool
	Amount    decimal.Decimal
	Currency  string
}

// Verifier checks whether an external payment has actually been paid.
type Verifier interface {
	VerifyPayment(ctx context.Context, sessionID string) (*PaymentStatus, error)
}

// Client verifies payments through the Stripe API.
type Client struct {
	sc *stripe.Client
}

func NewClient(secretKey string) *Client {
	return &Client{sc: stripe.NewClient(secretKey, nil)}
}

// VerifyPayment retrieves the checkout session and reports whether
// Stripe considers it paid, along with the paid amount in major
// currency units.
func (c *Client) VerifyPayment(ctx context.Context, sessionID string) (*PaymentStatus, error) {
	session, err := c.sc.V1CheckoutSessions.Retrieve(ctx, sessionID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		logrus.Errorf("failed to retrieve checkout session %s: %v", sessionID, err)
		return nil, errors.Wrapf(err, "retrieving checkout session %s", sessionID)
	}

	amount := decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100))
	return &PaymentStatus{
		SessionID: session.ID,
		Paid:      session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:    amount,
		Currency:  string(session.Currency),
	}, nil
}
