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
)

func (a Api) GetWallet(c *gin.Context) {
	userID, passed := c.Params.Get("user_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required. pass user_id in the route /:user_id"})
		return
	}

	wallet, err := a.reel.GetWallet(c.Request.Context(), userID)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

func (a Api) GetLedger(c *gin.Context) {
	userID, passed := c.Params.Get("user_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required. pass user_id in the route /:user_id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := a.reel.GetLedger(c.Request.Context(), userID, limit, offset)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// GrantWelcomeBonus credits the signup bonus. Replays return 200 with
// granted=false rather than an error, so clients can call it blindly on
// signup flows.
func (a Api) GrantWelcomeBonus(c *gin.Context) {
	userID, passed := c.Params.Get("user_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required. pass user_id in the route /:user_id"})
		return
	}

	wallet, granted, err := a.reel.GrantWelcomeBonus(c.Request.Context(), userID)
	if err != nil {
		apiError(c, err)
		return
	}

	status := http.StatusOK
	if granted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"wallet": wallet, "granted": granted})
}
