package api

import (
	"errors"
	"fmt"
	"net/http"

	"nanoclaw-sidecar/ipc"
	"nanoclaw-sidecar/metrics"
)

// SendRequest is the body of POST /send.
type SendRequest struct {
	Message *string `json:"message" validate:"required" example:"Deploy finished"`
	Group   *string `json:"group,omitempty" example:"ops"`
}

// SendResponse is returned for a delivered message.
type SendResponse struct {
	OK   bool   `json:"ok" example:"true"`
	File string `json:"file" example:"/data/ipc/main/messages/webhook-1718000000000.json"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	OK bool `json:"ok" example:"true"`
}

// ReadinessResponse is returned by /ready.
type ReadinessResponse struct {
	Ready  bool   `json:"ready"`
	Groups int    `json:"groups"`
	Error  string `json:"error,omitempty"`
}

// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Liveness probe
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, HealthResponse{OK: true}, http.StatusOK)
}

// readinessCheck godoc
//
//	@Summary		Readiness check
//	@Description	Reports whether nanoclaw's IPC messages directory is present
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	ReadinessResponse
//	@Failure		503	{object}	ReadinessResponse
//	@Router			/ready [get]
func (a *API) readinessCheck(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Ready: true, Groups: a.groups.Len()}
	if err := a.writer.Ready(); err != nil {
		resp.Ready = false
		resp.Error = err.Error()
		a.respondJSON(w, resp, http.StatusServiceUnavailable)
		return
	}
	a.respondJSON(w, resp, http.StatusOK)
}

// send godoc
//
//	@Summary		Send a WhatsApp message
//	@Description	Writes a nanoclaw IPC message file for the group. The default group is used when group is omitted.
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SendRequest	true	"Message to deliver"
//	@Success		200		{object}	SendResponse
//	@Failure		404		{object}	ErrorResponse	"Unknown group"
//	@Failure		413		{object}	ErrorResponse	"Body too large"
//	@Failure		422		{object}	ValidationErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse	"IPC directory missing"
//	@Router			/send [post]
func (a *API) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	issues, err := a.decodeJSONBody(w, r, &req)
	if errors.Is(err, errBodyTooLarge) {
		metrics.SendFailures.WithLabelValues(metrics.ReasonInvalidRequest).Inc()
		a.respondDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	if issues == nil {
		if verr := a.validate.Struct(&req); verr != nil {
			issues = validationIssues(verr)
		}
	}
	if len(issues) > 0 {
		metrics.SendFailures.WithLabelValues(metrics.ReasonInvalidRequest).Inc()
		a.respondJSON(w, ValidationErrorResponse{Detail: issues}, http.StatusUnprocessableEntity)
		return
	}

	groupName := a.config.DefaultGroup
	if req.Group != nil && *req.Group != "" {
		groupName = *req.Group
	}

	jid, ok := a.groups.Lookup(groupName)
	if !ok {
		metrics.SendFailures.WithLabelValues(metrics.ReasonUnknownGroup).Inc()
		a.writeError(w, r, http.StatusNotFound,
			fmt.Sprintf("Group '%s' not found in groups config", groupName), nil)
		return
	}

	file, err := a.writer.Write(ipc.NewMessage(jid, *req.Message))
	if err != nil {
		if errors.Is(err, ipc.ErrMessagesDirMissing) {
			metrics.SendFailures.WithLabelValues(metrics.ReasonIPCUnavailable).Inc()
			a.writeError(w, r, http.StatusServiceUnavailable, "IPC messages directory does not exist", err)
			return
		}
		metrics.SendFailures.WithLabelValues(metrics.ReasonWriteError).Inc()
		a.writeError(w, r, http.StatusInternalServerError, "Failed to write IPC message", err)
		return
	}

	metrics.MessagesWritten.WithLabelValues(groupName).Inc()
	a.logger.Infow("IPC message written",
		"request_id", RequestIDFromContext(r.Context()),
		"group", groupName,
		"file", file)
	a.respondJSON(w, SendResponse{OK: true, File: file}, http.StatusOK)
}
