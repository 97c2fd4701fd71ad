package http

import (
	"context"
	"net/http"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/go-chi/chi/v5"
)

// HeldSaleService is the minimal interface needed for the point-of-sale hold endpoints.
type HeldSaleService interface {
	Hold(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, notes string) (domain.HeldSale, error)
	List(ctx context.Context, scope domain.Scope) ([]domain.HeldSale, error)
	Retrieve(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, id string) (app.RetrieveResult, error)
	Discard(ctx context.Context, scope domain.Scope, id string) error
}

type holdRequest struct {
	Notes string `json:"notes"`
}

// HandleHoldSale parks the cashier's cart and empties it.
func HandleHoldSale(svc HeldSaleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req holdRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sale, err := svc.Hold(r.Context(), scopeOf(r), principalFrom(r.Context()).Owner, req.Notes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newHeldSaleResponse(sale))
	}
}

func HandleListHeldSales(svc HeldSaleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sales, err := svc.List(r.Context(), scopeOf(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]heldSaleResponse, 0, len(sales))
		for _, s := range sales {
			resp = append(resp, newHeldSaleResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type retrieveResponse struct {
	HeldSale heldSaleResponse      `json:"held_sale"`
	Skipped  []domain.HeldSaleItem `json:"skipped"`
}

// HandleRetrieveHeldSale restores a held sale into the caller's cart. Lines that can
// no longer be sold are reported in skipped.
func HandleRetrieveHeldSale(svc HeldSaleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Retrieve(r.Context(), scopeOf(r), principalFrom(r.Context()).Owner, chi.URLParam(r, "heldSaleID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		skipped := res.Skipped
		if skipped == nil {
			skipped = []domain.HeldSaleItem{}
		}
		writeJSON(w, http.StatusOK, retrieveResponse{HeldSale: newHeldSaleResponse(res.Sale), Skipped: skipped})
	}
}

func HandleDiscardHeldSale(svc HeldSaleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Discard(r.Context(), scopeOf(r), chi.URLParam(r, "heldSaleID")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
