package trigger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sequencer_backend/internal/journal"
	"sequencer_backend/internal/state"
	"sequencer_backend/platform/httpkit"
	"sequencer_backend/platform/validator"
)

const (
	errInvalidRequest    = "invalid request body"
	errValidation        = "validation error"
	errInvalidInstanceID = "invalid instance ID"
	errInvalidKeyID      = "invalid key ID"
	errInvalidLimit      = "invalid limit"

	statusAccepted = "accepted"
)

// Handler handles trigger ingress and operator HTTP requests.
type Handler struct {
	service *Service
	repo    *Repository
	val     *validator.Validator
}

// NewHandler creates a new trigger handler.
func NewHandler(service *Service, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{service: service, repo: repo, val: val}
}

// ---- Trigger ingress (public, API-key authenticated) ----

// HandleTrigger accepts an assessment trigger and plans its sequence.
// POST /api/v1/sequences/trigger
// Authenticated via X-Sequencer-API-Key header (set by middleware).
func (h *Handler) HandleTrigger(c *gin.Context) {
	var req TriggerRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	res, err := h.service.Trigger(c.Request.Context(), req.toTrigger())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, TriggerAcceptedResponse{
		Status:     statusAccepted,
		InstanceID: res.InstanceID,
	})
}

// ---- Operator surface (JWT authenticated) ----

// HandleGetInstance returns one instance with its step ledger.
// GET /api/v1/ops/sequences/:instanceId
func (h *Handler) HandleGetInstance(c *gin.Context) {
	instanceID, ok := h.parseInstanceID(c)
	if !ok {
		return
	}

	inst, steps, err := h.service.InstanceDetail(c.Request.Context(), instanceID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "instance not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	detail := InstanceDetailResponse{
		InstanceResponse: toInstanceResponse(inst),
		Steps:            make([]StepResponse, len(steps)),
	}
	for i, step := range steps {
		detail.Steps[i] = toStepResponse(step)
	}

	httpkit.OK(c, detail)
}

// HandleListInstances lists every instance of a recipient, archived included.
// GET /api/v1/ops/recipients/:recipientKey/sequences
func (h *Handler) HandleListInstances(c *gin.Context) {
	instances, err := h.service.Instances(c.Request.Context(), c.Param("recipientKey"))
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]InstanceResponse, len(instances))
	for i, inst := range instances {
		result[i] = toInstanceResponse(inst)
	}

	httpkit.OK(c, result)
}

// HandleInstanceJournal returns the journal rows of one instance.
// GET /api/v1/ops/sequences/:instanceId/journal
func (h *Handler) HandleInstanceJournal(c *gin.Context) {
	instanceID, ok := h.parseInstanceID(c)
	if !ok {
		return
	}
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}

	records, err := h.service.JournalByInstance(c.Request.Context(), instanceID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toJournalResponses(records))
}

// HandleRecipientJournal returns the journal rows of a recipient.
// GET /api/v1/ops/recipients/:recipientKey/journal
func (h *Handler) HandleRecipientJournal(c *gin.Context) {
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}

	records, err := h.service.JournalByRecipient(c.Request.Context(), c.Param("recipientKey"), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toJournalResponses(records))
}

// HandleArchive retires the active instance of (recipient, sequence type).
// POST /api/v1/ops/recipients/:recipientKey/sequences/:sequenceType/archive
func (h *Handler) HandleArchive(c *gin.Context) {
	archived, err := h.service.Archive(c.Request.Context(), c.Param("recipientKey"), c.Param("sequenceType"))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, ArchiveResponse{Archived: archived})
}

// ---- API key management (JWT authenticated) ----

// HandleCreateAPIKey creates a new trigger API key.
// POST /api/v1/ops/trigger-keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists all trigger API keys.
// GET /api/v1/ops/trigger-keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	keys, err := h.repo.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}

	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a trigger API key.
// DELETE /api/v1/ops/trigger-keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidKeyID, nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID); err != nil {
		if errors.Is(err, ErrAPIKeyNotFound) {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}

func toJournalResponses(records []journal.Record) []JournalEntryResponse {
	result := make([]JournalEntryResponse, len(records))
	for i, rec := range records {
		result[i] = toJournalResponse(rec)
	}
	return result
}

func (h *Handler) parseInstanceID(c *gin.Context) (uuid.UUID, bool) {
	instanceID, err := uuid.Parse(c.Param("instanceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidInstanceID, nil)
		return uuid.UUID{}, false
	}
	return instanceID, true
}

// parseLimit reads the optional limit query parameter. Zero means "use the
// store's default".
func (h *Handler) parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		httpkit.Error(c, http.StatusBadRequest, errInvalidLimit, nil)
		return 0, false
	}
	return limit, true
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}
