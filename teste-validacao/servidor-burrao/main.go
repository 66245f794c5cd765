// Upstream burro para validar o gateway na mão: responde as rotas do
// marketplace e loga cada requisição que passou pelos limites.
package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"parking-gateway/internal/logging"
	"parking-gateway/internal/marketplace"
	"parking-gateway/middleware/accesslog"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New("info", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	r := chi.NewRouter()
	r.Use(accesslog.Middleware(logger))
	r.Get("/showTela", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
	})
	marketplace.Routes(r)

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("upstream de validação rodando", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("erro ao subir o servidor", zap.Error(err))
	}
}
