// Package requestid propaga um X-Request-ID por requisição para correlacionar
// logs do gateway e do upstream.
package requestid

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const Header = "X-Request-ID"

type ctxKey struct{}

// Middleware reaproveita o id do chi ou do header de entrada; senão gera um UUID.
// O id volta no header da resposta e segue no header da requisição para o upstream.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id == "" {
			id = r.Header.Get(Header)
		}
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(Header, id)
		r.Header.Set(Header, id)

		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext devolve o id da requisição ou "" se o middleware não rodou.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return chimw.GetReqID(ctx)
}
