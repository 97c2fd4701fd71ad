package http

import (
	"context"
	"net/http"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CartService is the minimal interface needed for the cart endpoints.
type CartService interface {
	AddItem(ctx context.Context, in app.AddItemInput) (domain.CartItem, error)
	UpdateQuantity(ctx context.Context, in app.UpdateQuantityInput) error
	RemoveItem(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, itemID string) error
	Clear(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) error
	Summarize(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (domain.CartSummary, error)
	MergeInto(ctx context.Context, scope domain.Scope, guest, target domain.OwnerKey) (domain.Cart, error)
}

func scopeOf(r *http.Request) domain.Scope {
	return domain.Scope{
		TenantID: principalFrom(r.Context()).TenantID,
		ShopID:   chi.URLParam(r, "shopID"),
	}
}

// HandleGetCart returns the owner's cart priced at current prices.
func HandleGetCart(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summarize(r.Context(), scopeOf(r), principalFrom(r.Context()).Owner)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newCartResponse(summary))
	}
}

type addItemRequest struct {
	Kind       string `json:"kind"`
	SellableID string `json:"sellable_id"`
	Quantity   int    `json:"quantity"`
	configurationDTO
}

// HandleAddCartItem adds a line or merges into the line with the same configuration.
func HandleAddCartItem(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.SellableID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "sellable_id is required")
			return
		}
		if req.Kind == "" {
			req.Kind = string(domain.SellableProduct)
		}

		item, err := svc.AddItem(r.Context(), app.AddItemInput{
			Scope:         scopeOf(r),
			Owner:         principalFrom(r.Context()).Owner,
			Sellable:      domain.SellableRef{Kind: domain.SellableKind(req.Kind), ID: req.SellableID},
			Quantity:      req.Quantity,
			Configuration: req.configurationDTO.toDomain(),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newCartItemResponse(item))
	}
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

// HandleUpdateCartItem sets a line quantity; zero removes the line.
func HandleUpdateCartItem(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Quantity == nil {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "quantity is required")
			return
		}

		err := svc.UpdateQuantity(r.Context(), app.UpdateQuantityInput{
			Scope:    scopeOf(r),
			Owner:    principalFrom(r.Context()).Owner,
			ItemID:   chi.URLParam(r, "itemID"),
			Quantity: *req.Quantity,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleRemoveCartItem(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.RemoveItem(r.Context(), scopeOf(r), principalFrom(r.Context()).Owner, chi.URLParam(r, "itemID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleClearCart(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Clear(r.Context(), scopeOf(r), principalFrom(r.Context()).Owner); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type mergeCartRequest struct {
	SessionToken string `json:"session_token"`
}

// HandleMergeCart moves a guest cart into the signed-in customer's cart, as on login.
// The guest session comes from the body or the X-Cart-Session header.
func HandleMergeCart(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p.Owner.Kind != domain.OwnerCustomer {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "merging requires a customer bearer token")
			return
		}

		var req mergeCartRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		session := req.SessionToken
		if session == "" {
			session = p.GuestSession
		}
		if session == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "session_token is required")
			return
		}

		scope := scopeOf(r)
		if _, err := svc.MergeInto(r.Context(), scope, domain.GuestOwner(session), p.Owner); err != nil {
			writeServiceError(w, r, err)
			return
		}
		summary, err := svc.Summarize(r.Context(), scope, p.Owner)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newCartResponse(summary))
	}
}
