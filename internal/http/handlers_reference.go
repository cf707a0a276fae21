package http

import (
	"net/http"

	"scadenzario/internal/core"
)

// handleListCategories lists categories, optionally filtered by ?type=.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	var t core.TransactionType
	if v := r.URL.Query().Get("type"); v != "" {
		parsed, err := core.ParseTransactionType(v)
		if err != nil {
			ErrorFor(r, err).Write(w)
			return
		}
		t = parsed
	}
	cats, err := s.refs.Categories(r.Context(), t)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newCategoryViews(cats)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	t, err := core.ParseTransactionType(p.Get("type"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	created, err := s.refs.CreateCategory(r.Context(), core.Category{Name: p.Get("name"), Type: t})
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		JSON(newCategoryViews([]core.Category{created})[0]).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	t, err := core.ParseTransactionType(p.Get("type"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	updated, err := s.refs.UpdateCategory(r.Context(), core.Category{ID: id, Name: p.Get("name"), Type: t})
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newCategoryViews([]core.Category{updated})[0]).Write(w)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.refs.PaymentMethods(r.Context())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newPaymentMethodViews(methods)).Write(w)
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	created, err := s.refs.CreatePaymentMethod(r.Context(), core.PaymentMethod{Name: p.Get("name")})
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		JSON(newPaymentMethodViews([]core.PaymentMethod{created})[0]).
		Write(w)
}

func (s *Server) handleUpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	updated, err := s.refs.UpdatePaymentMethod(r.Context(), core.PaymentMethod{ID: id, Name: p.Get("name")})
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().JSON(newPaymentMethodViews([]core.PaymentMethod{updated})[0]).Write(w)
}
