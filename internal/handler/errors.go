package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/middleware"
	"signage-fleet-server/pkg/response"
)

// writeError maps service errors onto the operator API envelope. Storage
// details are logged and never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid credentials")
	case errors.Is(err, domain.ErrDeviceInactive):
		response.Forbidden(w, "Device is inactive")
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		response.InternalError(w, "Internal server error")
	}
}

// writeDeviceError is writeError for device callers, which also need a code
// and an action.
func writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.DeviceError(w, http.StatusUnauthorized, "invalid credentials", "INVALID_CREDENTIALS", response.ActionIgnore)
	case errors.Is(err, domain.ErrDeviceInactive):
		response.DeviceError(w, http.StatusForbidden, "device is inactive", "DEVICE_INACTIVE", response.ActionIgnore)
	case errors.Is(err, domain.ErrSessionExpired):
		response.DeviceError(w, http.StatusUnauthorized, "session expired", "SESSION_EXPIRED", response.ActionRePair)
	case errors.Is(err, domain.ErrSessionCompromised):
		response.DeviceError(w, http.StatusUnauthorized, "session compromised", "SESSION_COMPROMISED", response.ActionRePair)
	case errors.Is(err, domain.ErrValidation):
		response.DeviceError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST", response.ActionIgnore)
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Device request failed")
		response.DeviceError(w, http.StatusInternalServerError, "internal error", "SERVER_ERROR", response.ActionRetry)
	}
}

// decode reads and validates a JSON body.
func decode(r *http.Request, validate *validator.Validate, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("Invalid request payload")
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func currentOperator(w http.ResponseWriter, r *http.Request) (domain.Operator, bool) {
	op, ok := middleware.GetOperator(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
	}
	return op, ok
}

func currentDevice(w http.ResponseWriter, r *http.Request) (*domain.Device, bool) {
	d, ok := middleware.DeviceFromContext(r.Context())
	if !ok {
		response.DeviceError(w, http.StatusUnauthorized, "session expired", "SESSION_EXPIRED", response.ActionRePair)
	}
	return d, ok
}
