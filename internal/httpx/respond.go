package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pawzr/marketplace/internal/auth"
	"github.com/pawzr/marketplace/internal/catalog"
	"github.com/pawzr/marketplace/internal/notify"
	"github.com/pawzr/marketplace/internal/orders"
	"github.com/pawzr/marketplace/internal/redisx"
)

// httpError carries a status chosen by the handler itself.
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string { return e.msg }

var (
	errUnauthorized = &httpError{http.StatusUnauthorized, "unauthorized"}
	errBadJSON      = &httpError{http.StatusBadRequest, "invalid json"}
)

func forbidden(msg string) error  { return &httpError{http.StatusForbidden, msg} }
func badRequest(msg string) error { return &httpError{http.StatusBadRequest, msg} }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

// statusOf maps domain errors onto HTTP codes; 0 means unexpected.
func statusOf(err error) int {
	var he *httpError
	var ve *orders.ValidationError
	var nf *orders.ProductNotFoundError
	var ins *orders.InsufficientInventoryError
	switch {
	case errors.As(err, &he):
		return he.code
	case errors.As(err, &ve), errors.As(err, &nf), errors.As(err, &ins):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, catalog.ErrStockUnderflow):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrForbidden), errors.Is(err, catalog.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, notify.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, redisx.ErrInFlight):
		return http.StatusConflict
	}
	return 0
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == 0 {
		log.Printf("request_id=%s %s %s: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
