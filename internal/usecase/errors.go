package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is a terminal request failure carrying a machine-readable
// code, a human-readable message, and the HTTP status the route layer should
// surface. It marshals directly as the wire error body.
type RequestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsRequestError unwraps err into a RequestError if one is present.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// authorizationStatus picks the status for authorization failures: 401 for
// anonymous actors, 403 for authenticated ones.
func authorizationStatus(actorID int64) int {
	if actorID == 0 {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

func errInvalidID() *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_id",
		Message: "Invalid resource id.",
		Status:  http.StatusNotFound,
	}
}

func errCannotViewEditContext(actorID int64) *RequestError {
	return &RequestError{
		Code:    "rest_user_cannot_view",
		Message: "Sorry, you cannot view this resource with edit context.",
		Status:  authorizationStatus(actorID),
	}
}

func errCannotView(actorID int64) *RequestError {
	return &RequestError{
		Code:    "rest_user_cannot_view",
		Message: "Sorry, you cannot view this resource.",
		Status:  authorizationStatus(actorID),
	}
}

func errCannotEdit(actorID int64) *RequestError {
	return &RequestError{
		Code:    "rest_cannot_edit",
		Message: "Sorry, you are not allowed to edit this resource.",
		Status:  authorizationStatus(actorID),
	}
}

func errCannotEditRoles(actorID int64) *RequestError {
	return &RequestError{
		Code:    "rest_cannot_edit_roles",
		Message: "Sorry, you are not allowed to edit roles of this resource.",
		Status:  authorizationStatus(actorID),
	}
}

func errInvalidEmail() *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_email",
		Message: "Email address is invalid.",
		Status:  http.StatusBadRequest,
	}
}

func errUsernameNotEditable() *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_argument",
		Message: "Username isn't editable.",
		Status:  http.StatusBadRequest,
	}
}

func errInvalidSlug() *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_slug",
		Message: "Slug is invalid.",
		Status:  http.StatusBadRequest,
	}
}

func errRoleMissing(role string) *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_role",
		Message: fmt.Sprintf("The role %s does not exist.", role),
		Status:  http.StatusBadRequest,
	}
}

func errRoleNotGrantableSelf(actorID int64) *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_role",
		Message: "You cannot give resource that role.",
		Status:  authorizationStatus(actorID),
	}
}

func errRoleNotEditable() *RequestError {
	return &RequestError{
		Code:    "rest_user_invalid_role",
		Message: "You cannot give resource that role.",
		Status:  http.StatusForbidden,
	}
}
