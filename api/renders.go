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
	"github.com/getreel/reel"
)

// StartRender charges for and submits a single render.
func (a Api) StartRender(c *gin.Context) {
	var payload model2.StartRender
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := payload.ValidateStartRender(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	task, wallet, err := a.reel.StartRender(c.Request.Context(), reel.StartRenderParams{
		UserID:   payload.UserID,
		ModelID:  payload.ModelID,
		Prompt:   payload.Prompt,
		DeviceID: payload.DeviceID,
		IPHash:   payload.IPHash,
	})
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task": task, "wallet": wallet})
}

// GetRender returns a render task's current state. Reads double as a
// polling trigger: a non-terminal task is advanced against the provider
// before being returned.
func (a Api) GetRender(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	task, err := a.reel.AdvanceRenderTask(c.Request.Context(), id)
	if err != nil {
		apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}
