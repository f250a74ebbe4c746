package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/orderledger/api/responses"
	pkgerrors "github.com/angelmondragon/orderledger/pkg/errors"
	"github.com/angelmondragon/orderledger/pkg/logger"
)

// Recoverer turns a handler panic into an INTERNAL_ERROR envelope. Aborted
// handlers keep propagating so net/http can drop the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithField(ctx, "panic", fmt.Sprint(rec))
					logg.Error(ctx, "panic.recovered", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
