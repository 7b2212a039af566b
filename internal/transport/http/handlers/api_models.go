package handlers

import "time"

// UpdateUserRequest is the decoded PUT/POST/PATCH payload. Absent keys stay
// nil so partial updates only touch what the client sent.
type UpdateUserRequest struct {
	Username    *string           `json:"username"`
	Email       *string           `json:"email"`
	Name        *string           `json:"name"`
	FirstName   *string           `json:"first_name"`
	LastName    *string           `json:"last_name"`
	Nickname    *string           `json:"nickname"`
	Slug        *string           `json:"slug"`
	Description *string           `json:"description"`
	URL         *string           `json:"url"`
	Password    *string           `json:"password"`
	Roles       []string          `json:"roles"`
	Meta        map[string]string `json:"meta"`
}

// ErrorResponse is the wire error body shared by every route.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}
