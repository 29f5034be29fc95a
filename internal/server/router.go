// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層組裝。
//   - handler.go 定義「如何處理請求」
//   - router.go 定義「請求如何被導向」
//   - cmd/server/main.go 組裝整體應用（注入 Bank、Storage、Redis、NATS）
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router 建立並回傳整個 HTTP 處理鏈。
// 所有端點同時掛在 / 與 /api/v1/ 之下；結尾斜線會被移除，/account/ 等同 /account。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Mount("/api/v1", s.v1())
	r.Mount("/", s.v1())
	return r
}

func (s *Server) v1() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(withAuth(s.secret))

		r.Post("/account", s.createAccount)
		r.Get("/account", s.listAccounts)
		r.Get("/account/balance/{id}", s.balance)
		r.Get("/account/history/{id}", s.history)
		r.Get("/users/{id}", s.user)

		r.With(withIdempotency(s.idem, s.idemTTL)).Post("/transaction", s.transaction)
	})
	return r
}
