package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wrdsb/user-directory-api/internal/core/schema"
	"github.com/wrdsb/user-directory-api/internal/transport/http/middleware"
	"github.com/wrdsb/user-directory-api/internal/usecase"
)

// UserHandler serves the user-by-id-number resource.
type UserHandler struct {
	users  *usecase.UserService
	logger *zap.Logger
}

// NewUserHandler builds a handler backed by the user service.
func NewUserHandler(users *usecase.UserService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes mounts the resource routes on the provided group.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:number", h.GetItem)
	r.PUT("/:number", h.UpdateItem)
	r.POST("/:number", h.UpdateItem)
	r.PATCH("/:number", h.UpdateItem)
	r.OPTIONS("/:number", h.Describe)
	r.OPTIONS("", h.Describe)
}

// GetItem godoc
// @Summary Retrieve a user by alternate identifier
// @Description Resolves the id number to a user and returns the fields visible in the requested context.
// @Tags Users
// @Produce json
// @Param number path string true "Alternate identifier"
// @Param context query string false "Response context (embed, view, edit)" default(edit)
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /user-by-id-number/{number} [get]
func (h *UserHandler) GetItem(c *gin.Context) {
	viewContext, ok := requestContext(c)
	if !ok {
		return
	}

	actorID := middleware.ActorID(c)

	data, err := h.users.GetItem(c.Request.Context(), actorID, c.Param("number"), viewContext)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// UpdateItem godoc
// @Summary Update a user located by alternate identifier
// @Description Applies the writable fields of the payload to the resolved user and returns the edit-context view.
// @Tags Users
// @Accept json
// @Produce json
// @Param number path string true "Alternate identifier"
// @Param request body UpdateUserRequest true "Fields to update"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /user-by-id-number/{number} [put]
func (h *UserHandler) UpdateItem(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "rest_invalid_json",
			Message: "Invalid JSON body.",
			Status:  http.StatusBadRequest,
		})
		return
	}

	actorID := middleware.ActorID(c)

	input := usecase.UpdateInput{
		Username:    req.Username,
		Email:       req.Email,
		Name:        req.Name,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Nickname:    req.Nickname,
		Slug:        req.Slug,
		Description: req.Description,
		URL:         req.URL,
		Password:    req.Password,
		Roles:       req.Roles,
		Meta:        req.Meta,
	}

	data, err := h.users.UpdateItem(c.Request.Context(), actorID, c.Param("number"), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// Describe godoc
// @Summary Publish the resource schema
// @Description Returns the JSON schema document describing the user resource.
// @Tags Users
// @Produce json
// @Success 200 {object} map[string]any
// @Router /user-by-id-number [options]
func (h *UserHandler) Describe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"methods": []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
		},
		"schema": h.users.Schema(),
	})
}

// requestContext parses the context query parameter, defaulting to edit.
func requestContext(c *gin.Context) (schema.Context, bool) {
	raw := c.DefaultQuery("context", string(schema.ContextEdit))

	viewContext, ok := schema.ParseContext(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "rest_invalid_param",
			Message: "Invalid parameter(s): context",
			Status:  http.StatusBadRequest,
		})
		return "", false
	}

	return viewContext, true
}
