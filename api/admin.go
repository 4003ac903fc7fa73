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
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/getreel/reel/api/model"
)

// RefundConsumption credits a spent consumption back to the wallet.
// Exactly-once: a repeated call returns 409.
func (a Api) RefundConsumption(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	cons, wallet, err := a.reel.RefundConsumption(c.Request.Context(), id)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consumption": cons, "wallet": wallet})
}

func (a Api) AdminAdjust(c *gin.Context) {
	userID, passed := c.Params.Get("user_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required. pass user_id in the route /:user_id"})
		return
	}

	var payload model2.AdminAdjust
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := payload.ValidateAdminAdjust(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	wallet, err := a.reel.AdminAdjust(c.Request.Context(), userID, payload.DeltaPermanent, payload.DeltaBonus, payload.Reason)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

func (a Api) Reconciliation(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	mismatches, err := a.reel.ReconcileLegacyBalances(c.Request.Context(), limit)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mismatches": mismatches, "count": len(mismatches)})
}
