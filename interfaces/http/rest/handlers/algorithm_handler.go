package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"feedrank/application/commands"
	"feedrank/application/commands/bus"
	"feedrank/application/queries"
	querybus "feedrank/application/queries/bus"
	"feedrank/application/services"
	"feedrank/pkg/common"
	pkgerrors "feedrank/pkg/errors"
)

const maxBodyBytes = 64 << 10

// AlgorithmHandler handles algorithm catalog and lifecycle requests
type AlgorithmHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewAlgorithmHandler creates a new algorithm handler
func NewAlgorithmHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *AlgorithmHandler {
	return &AlgorithmHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// UpdateAlgorithmRequest is the body of PUT /algorithms/{id}
type UpdateAlgorithmRequest struct {
	commands.AlgorithmDefinitionInput
	Version     string `json:"version"`
	ChangeNotes string `json:"change_notes"`
}

// InstallAlgorithmRequest is the optional body of POST /algorithms/{id}/install
type InstallAlgorithmRequest struct {
	CustomConfig map[string]interface{} `json:"custom_config"`
}

// RateAlgorithmRequest is the body of POST /algorithms/{id}/ratings
type RateAlgorithmRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// InstallResponse acknowledges an install or activation
type InstallResponse struct {
	AlgorithmID string `json:"algorithmId"`
	Installed   bool   `json:"installed"`
}

// ListAlgorithms handles GET /algorithms
func (h *AlgorithmHandler) ListAlgorithms(w http.ResponseWriter, r *http.Request) {
	params, err := common.ExtractOffsetParams(r)
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	viewerID, _ := common.GetUserID(r.Context())
	result, err := h.queryBus.Ask(r.Context(), queries.ListAlgorithmsQuery{
		ViewerID:     viewerID,
		Category:     r.URL.Query().Get("category"),
		OfficialOnly: common.QueryBool(r, "official"),
		Search:       r.URL.Query().Get("search"),
		Limit:        params.Limit,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetAlgorithm handles GET /algorithms/{id}. The path value may be a slug or an id.
func (h *AlgorithmHandler) GetAlgorithm(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := common.GetUserID(r.Context())
	result, err := h.queryBus.Ask(r.Context(), queries.GetAlgorithmQuery{
		ViewerID: viewerID,
		Ref:      chi.URLParam(r, "id"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetActiveAlgorithm handles GET /algorithms/active
func (h *AlgorithmHandler) GetActiveAlgorithm(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := common.GetUserID(r.Context())
	result, err := h.queryBus.Ask(r.Context(), queries.GetActiveAlgorithmQuery{ViewerID: viewerID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// ListInstalled handles GET /algorithms/installed
func (h *AlgorithmHandler) ListInstalled(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.GetUserID(r.Context())
	result, err := h.queryBus.Ask(r.Context(), queries.ListPreferencesQuery{UserID: userID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// ListRevisions handles GET /algorithms/{id}/revisions
func (h *AlgorithmHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	params, err := common.ExtractOffsetParams(r)
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	viewerID, _ := common.GetUserID(r.Context())
	result, err := h.queryBus.Ask(r.Context(), queries.ListRevisionsQuery{
		ViewerID:    viewerID,
		AlgorithmID: chi.URLParam(r, "id"),
		Limit:       params.Limit,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// CreateAlgorithm handles POST /algorithms
func (h *AlgorithmHandler) CreateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req commands.AlgorithmDefinitionInput
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	userID, _ := common.GetUserID(r.Context())
	algorithmID := uuid.New().String()

	if err := h.commandBus.Send(r.Context(), commands.CreateAlgorithmCommand{
		AlgorithmID:              algorithmID,
		UserID:                   userID,
		AlgorithmDefinitionInput: req,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Info("Algorithm created",
		zap.String("algorithmID", algorithmID),
		zap.String("slug", req.Slug),
		zap.String("userID", userID),
	)
	h.respondAlgorithm(w, r, http.StatusCreated, userID, algorithmID)
}

// UpdateAlgorithm handles PUT /algorithms/{id}
func (h *AlgorithmHandler) UpdateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req UpdateAlgorithmRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	userID, _ := common.GetUserID(r.Context())
	algorithmID := chi.URLParam(r, "id")

	if err := h.commandBus.Send(r.Context(), commands.UpdateAlgorithmCommand{
		AlgorithmID:              algorithmID,
		UserID:                   userID,
		Version:                  req.Version,
		ChangeNotes:              req.ChangeNotes,
		AlgorithmDefinitionInput: req.AlgorithmDefinitionInput,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.respondAlgorithm(w, r, http.StatusOK, userID, algorithmID)
}

// DeleteAlgorithm handles DELETE /algorithms/{id}
func (h *AlgorithmHandler) DeleteAlgorithm(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.GetUserID(r.Context())
	if err := h.commandBus.Send(r.Context(), commands.DeleteAlgorithmCommand{
		AlgorithmID: chi.URLParam(r, "id"),
		UserID:      userID,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondNoContent(w)
}

// InstallAlgorithm handles POST /algorithms/{id}/install. The body is optional.
func (h *AlgorithmHandler) InstallAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req InstallAlgorithmRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil && !errors.Is(err, io.EOF) {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	userID, _ := common.GetUserID(r.Context())
	algorithmID := chi.URLParam(r, "id")

	if err := h.commandBus.Send(r.Context(), commands.InstallAlgorithmCommand{
		AlgorithmID:  algorithmID,
		UserID:       userID,
		CustomConfig: req.CustomConfig,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, InstallResponse{AlgorithmID: algorithmID, Installed: true})
}

// UninstallAlgorithm handles DELETE /algorithms/{id}/install
func (h *AlgorithmHandler) UninstallAlgorithm(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.GetUserID(r.Context())
	if err := h.commandBus.Send(r.Context(), commands.UninstallAlgorithmCommand{
		AlgorithmID: chi.URLParam(r, "id"),
		UserID:      userID,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondNoContent(w)
}

// ActivateAlgorithm handles POST /algorithms/{id}/activate and returns the new active algorithm
func (h *AlgorithmHandler) ActivateAlgorithm(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.GetUserID(r.Context())
	if err := h.commandBus.Send(r.Context(), commands.ActivateAlgorithmCommand{
		AlgorithmID: chi.URLParam(r, "id"),
		UserID:      userID,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetActiveAlgorithmQuery{ViewerID: userID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// RateAlgorithm handles POST /algorithms/{id}/ratings
func (h *AlgorithmHandler) RateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req RateAlgorithmRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, invalidBody(err))
		return
	}

	userID, _ := common.GetUserID(r.Context())
	algorithmID := chi.URLParam(r, "id")

	if err := h.commandBus.Send(r.Context(), commands.RateAlgorithmCommand{
		AlgorithmID: algorithmID,
		UserID:      userID,
		Rating:      req.Rating,
		Review:      req.Review,
	}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	view, err := h.readAlgorithm(r, userID, algorithmID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, services.RatingSummary{
		AlgorithmID:   view.ID,
		AverageRating: view.AverageRating,
		RatingCount:   view.RatingCount,
	})
}

func (h *AlgorithmHandler) respondAlgorithm(w http.ResponseWriter, r *http.Request, status int, viewerID, algorithmID string) {
	view, err := h.readAlgorithm(r, viewerID, algorithmID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, status, view)
}

func (h *AlgorithmHandler) readAlgorithm(r *http.Request, viewerID, algorithmID string) (*queries.AlgorithmView, error) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetAlgorithmQuery{ViewerID: viewerID, Ref: algorithmID})
	if err != nil {
		return nil, err
	}
	view, ok := result.(*queries.AlgorithmView)
	if !ok {
		return nil, pkgerrors.NewInternalError("unexpected algorithm query result")
	}
	return view, nil
}

func invalidBody(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return pkgerrors.NewValidationError("request body exceeds " + strconv.FormatInt(maxErr.Limit, 10) + " bytes")
	}
	return pkgerrors.NewValidationError("invalid request body: " + err.Error())
}
