package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"caderninho/backend/internal/domain"
	"caderninho/backend/internal/schedule"
	"caderninho/backend/internal/service"
	"caderninho/backend/internal/store"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), actorFrom(r).BusinessID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context(), actorFrom(r).BusinessID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	var req domain.CartValidationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ValidateCart(r.Context(), actorFrom(r).BusinessID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	detail, err := a.service.SubmitSale(r.Context(), actorFrom(r).BusinessID, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	sales, err := a.service.ListSales(r.Context(), actorFrom(r).BusinessID, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetSale(r.Context(), actorFrom(r).BusinessID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	views, err := a.service.Installments(r.Context(), actorFrom(r).BusinessID, query.Get("status"), query.Get("customer_id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"installments": views})
}

func (a *API) handleInstallmentSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Summary(r.Context(), actorFrom(r).BusinessID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleCustomerBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := a.service.CustomerBalances(r.Context(), actorFrom(r).BusinessID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": balances})
}

func (a *API) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	installment, err := a.service.MarkPaid(r.Context(), actorFrom(r).BusinessID, chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"installment": installment})
}

// writeServiceError maps service and store errors to status codes. Stock
// conflicts are checked before the generic validation case because they wrap
// service.ErrValidation too.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var (
		conflict  *service.StockConflictError
		invalid   *service.ValidationError
		transport *service.TransportError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        conflict.Error(),
			"product_id":   conflict.ProductID,
			"product_name": conflict.ProductName,
			"requested":    conflict.Requested,
			"available":    conflict.Available,
		})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": invalid.Error(),
			"field": invalid.Field,
		})
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, schedule.ErrInvalidPlan):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &transport):
		a.logger.Error("sale submission interrupted", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "sale submission interrupted",
			"step":       transport.Step,
			"item_index": transport.ItemIndex,
			"sale_id":    transport.SaleID,
			"partial":    transport.Partial,
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
