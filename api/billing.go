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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/getreel/reel/api/model"
)

// CreateCheckout registers a pending recharge for a checkout session.
// Re-registering the same session returns the existing record.
func (a Api) CreateCheckout(c *gin.Context) {
	var payload model2.CreateCheckout
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := payload.ValidateCreateCheckout(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	recharge, err := a.reel.BeginCheckout(c.Request.Context(), payload.UserID, payload.SessionID, payload.Amount)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"recharge": recharge})
}

// FinalizePayment settles a checkout session. Replays of the same
// session return the already-settled state with 200.
func (a Api) FinalizePayment(c *gin.Context) {
	var payload model2.FinalizePayment
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := payload.ValidateFinalizePayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	recharge, wallet, err := a.reel.FinalizePayment(c.Request.Context(), payload.SessionID)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recharge": recharge, "wallet": wallet})
}
