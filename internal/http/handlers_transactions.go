package http

import (
	"net/http"
	"strings"

	"scadenzario/internal/log"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	cmd, err := ParseCreateSeries(w, r)
	if err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	req, err := cmd.ToRequest()
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	res, err := s.series.CreateSeries(r.Context(), req)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	if res.Installment != nil {
		NewJSONResponse().
			Status(http.StatusCreated).
			Header("Location", "/transactions/"+formatID(res.Installment.ID)).
			JSON(newTransactionView(*res.Installment)).
			Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/series/"+res.Summary.SeriesID).
		JSON(seriesSummaryView{
			SeriesID: res.Summary.SeriesID,
			Count:    res.Summary.Count,
			Total:    res.Summary.Total,
		}).
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseListFilter(r.URL.Query())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	page, err := s.series.List(r.Context(), f)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newPageView(page)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	it, err := s.series.Get(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newTransactionView(it)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	cmd, err := ParseUpdateInstallment(w, r)
	if err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	it, err := cmd.ToInstallment(id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	updated, err := s.series.Update(r.Context(), it)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newTransactionView(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	if err := s.series.Delete(r.Context(), id); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleSettleTransaction answers 404 with found=false for an unknown id and
// 200 otherwise, whether or not the status changed.
func (s *Server) handleSettleTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	res, err := s.series.Settle(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	if !res.Found {
		NewJSONResponse().Status(http.StatusNotFound).JSON(newTransitionView(res)).Write(w)
		return
	}
	s.logger.DebugContext(r.Context(), "Settle handled",
		log.FieldOperation, log.OpSettle,
		"id", id,
		"changed", res.Changed)
	NewJSONResponse().JSON(newTransitionView(res)).Write(w)
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	res, err := s.series.Cancel(r.Context(), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	if !res.Found {
		NewJSONResponse().Status(http.StatusNotFound).JSON(newTransitionView(res)).Write(w)
		return
	}
	NewJSONResponse().JSON(newTransitionView(res)).Write(w)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	seriesID := strings.TrimSpace(r.PathValue("seriesId"))
	items, err := s.series.Series(r.Context(), seriesID)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	if len(items) == 0 {
		NotFoundError("not found").Write(w)
		return
	}
	NewJSONResponse().JSON(newTransactionViews(items)).Write(w)
}
