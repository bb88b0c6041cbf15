package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"feedrank/application/queries"
	querybus "feedrank/application/queries/bus"
	"feedrank/application/services"
	"feedrank/pkg/common"
	pkgerrors "feedrank/pkg/errors"
)

// FeedHandler serves ranked feeds
type FeedHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{
		queryBus: queryBus,
		errors:   errorHandler,
		logger:   logger,
	}
}

// GetFeed handles GET /feed. Anonymous viewers get the default algorithm's ranking.
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	params, err := common.ExtractOffsetParams(r)
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	q := r.URL.Query()
	viewerID, _ := common.GetUserID(r.Context())

	result, err := h.queryBus.Ask(r.Context(), queries.GetFeedQuery{
		ViewerID:  viewerID,
		Algorithm: q.Get("algorithm"),
		Limit:     params.Limit,
		Offset:    params.Offset,
		Explain:   common.QueryBool(r, "explain"),
		TimeOfDay: q.Get("time_of_day"),
		Location:  q.Get("location"),
		Device:    q.Get("device"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	feed, ok := result.(*services.FeedResponse)
	if !ok {
		h.errors.Handle(w, r, pkgerrors.NewInternalError("unexpected feed query result"))
		return
	}
	if feed.Fallback {
		w.Header().Set("X-Feed-Fallback", "true")
	}

	page := params
	if page.Limit == 0 {
		page.Limit = len(feed.Posts)
	}
	common.RespondWithMeta(w, r, http.StatusOK, feed, &common.MetaInfo{
		Pagination: common.BuildPaginationInfo(page, len(feed.Posts)),
	})
}
