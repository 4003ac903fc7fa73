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

	"github.com/getreel/reel"
	"github.com/getreel/reel/api/middleware"
	"github.com/getreel/reel/config"
	"github.com/getreel/reel/internal/apierror"
)

type Api struct {
	reel   *reel.Reel
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}

	// the admin group carries its own key, so service auth applies to
	// everything else
	service := router.Group("/")
	if conf.Server.Secure {
		service.Use(middleware.SecretKeyAuthMiddleware())
	}

	service.POST("/billing/checkout", a.CreateCheckout)
	service.POST("/billing/finalize", a.FinalizePayment)

	service.POST("/renders", a.StartRender)
	service.GET("/renders/:id", a.GetRender)

	service.GET("/wallets/:user_id", a.GetWallet)
	service.GET("/wallets/:user_id/ledger", a.GetLedger)
	service.POST("/wallets/:user_id/welcome-bonus", a.GrantWelcomeBonus)

	service.POST("/batches", a.CreateBatch)
	service.GET("/batches/:id", a.GetBatch)

	admin := router.Group("/admin", middleware.AdminKeyAuthMiddleware())
	admin.POST("/consumptions/:id/refund", a.RefundConsumption)
	admin.POST("/wallets/:user_id/adjust", a.AdminAdjust)
	admin.GET("/reconciliation", a.Reconciliation)

	return a.router
}

func NewAPI(r *reel.Reel) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.Default()
	router.Use(middleware.RateLimitMiddleware(conf))

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{reel: r, router: router}
}

// apiError writes an error response using the canonical status mapping.
func apiError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
