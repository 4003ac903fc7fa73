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

package reel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/model"
)

func TestDeliverBatchWebhook_NoURL(t *testing.T) {
	config.MockConfig(testConfig())
	httpmock.ActivateNonDefault(webhookHTTPClient)
	defer httpmock.DeactivateAndReset()

	delivered, attempts, err := deliverBatchWebhook(&model.BatchJob{BatchID: "bat_1"})
	assert.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestDeliverBatchWebhook_AllAttemptsFail(t *testing.T) {
	config.MockConfig(testConfig())
	httpmock.ActivateNonDefault(webhookHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/done",
		httpmock.NewStringResponder(http.StatusInternalServerError, "nope"))

	delivered, attempts, err := deliverBatchWebhook(&model.BatchJob{
		BatchID:    "bat_1",
		UserID:     "usr_1",
		WebhookURL: "https://hooks.example.com/done",
		TotalCount: 3,
	})
	assert.False(t, delivered)
	assert.Equal(t, 3, attempts)
	assert.Error(t, err)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestDeliverBatchWebhook_SignsAndDelivers(t *testing.T) {
	config.MockConfig(testConfig())
	httpmock.ActivateNonDefault(webhookHTTPClient)
	defer httpmock.DeactivateAndReset()

	var gotSignature, gotBatchID string
	var gotBody []byte
	httpmock.RegisterResponder("POST", "https://hooks.example.com/done",
		func(req *http.Request) (*http.Response, error) {
			gotSignature = req.Header.Get("x-webhook-signature")
			gotBatchID = req.Header.Get("x-batch-id")
			gotBody, _ = io.ReadAll(req.Body)
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	delivered, attempts, err := deliverBatchWebhook(&model.BatchJob{
		BatchID:        "bat_1",
		UserID:         "usr_1",
		WebhookURL:     "https://hooks.example.com/done",
		WebhookSecret:  "whsec_test",
		TotalCount:     2,
		SucceededCount: 2,
	})
	assert.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "bat_1", gotBatchID)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestDeliverBatchWebhook_FirstAttemptImmediate(t *testing.T) {
	cnf := testConfig()
	cnf.Queue.WebhookBackoffMs = 30000
	config.MockConfig(cnf)
	httpmock.ActivateNonDefault(webhookHTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.example.com/done",
		httpmock.NewStringResponder(http.StatusOK, `{"ok":true}`))

	start := time.Now()
	delivered, attempts, err := deliverBatchWebhook(&model.BatchJob{
		BatchID:    "bat_1",
		UserID:     "usr_1",
		WebhookURL: "https://hooks.example.com/done",
		TotalCount: 1,
	})
	assert.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, 1, attempts)
	// a healthy receiver is not made to wait out the retry backoff
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBatchStatus(t *testing.T) {
	assert.Equal(t, "completed", batchStatus(&model.BatchJob{TotalCount: 3, SucceededCount: 3}))
	assert.Equal(t, "failed", batchStatus(&model.BatchJob{TotalCount: 3, FailedCount: 3}))
	assert.Equal(t, "partial", batchStatus(&model.BatchJob{TotalCount: 3, SucceededCount: 2, FailedCount: 1}))
}
