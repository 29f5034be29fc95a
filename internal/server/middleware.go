// internal/server/middleware.go
//
// 中介層：請求日誌、身分驗證與 Idempotency-Key 重送。
package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ledger/internal/auth"
	"ledger/internal/idempotency"
	"ledger/internal/logger"
)

type ctxKey struct{}

// identity 回傳驗證中介層放入 context 的請求者身分。
func identity(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// withRequestLog 以 zap 記錄每個請求的方法、路徑、狀態碼與耗時。
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Log.Info("request",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
		)
	})
}

// withAuth 驗證 Authorization header 並將 sub 放入 context。
func withAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := auth.FromHeader(r.Header.Get("Authorization"))
			if err != nil {
				logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI))
				writeErr(w, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			sub, err := auth.Parse(secret, tok)
			if err != nil {
				logger.Log.Warn("unauthorized request", logger.String("url", r.RequestURI), logger.Error(err))
				writeErr(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sub)))
		})
	}
}

// withIdempotency 對帶有 Idempotency-Key 的請求：
//  1. 已有保存的回應時直接重送，並加上 X-Idempotency-Hit: true
//  2. 同一個 key 正在處理中時回傳 409
//  3. 否則執行 handler，並保存非 5xx 的回應
//
// 儲存層無法使用時回傳 503，避免在無法判斷是否重送的情況下重複記帳。
func withIdempotency(store idempotency.Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get("Idempotency-Key")
			if store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := idempotency.Key(identity(ctx), clientKey)

			cached, err := store.Get(ctx, key)
			if err != nil {
				logger.Log.Error("idempotency lookup failed", logger.Error(err))
				writeErr(w, http.StatusServiceUnavailable, msgUnavailable)
				return
			}
			if cached != nil {
				replay(w, cached)
				return
			}

			ok, err := store.Reserve(ctx, key)
			if err != nil {
				logger.Log.Error("idempotency reserve failed", logger.Error(err))
				writeErr(w, http.StatusServiceUnavailable, msgUnavailable)
				return
			}
			if !ok {
				writeErr(w, http.StatusConflict, msgInProgress)
				return
			}
			defer func() {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.Log.Warn("idempotency release failed", logger.Error(err))
				}
			}()

			// 取得處理權後再查一次，前一個請求可能剛好完成。
			if cached, err := store.Get(ctx, key); err == nil && cached != nil {
				replay(w, cached)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			resp := idempotency.Response{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			}
			if err := store.Set(context.WithoutCancel(ctx), key, resp, ttl); err != nil {
				logger.Log.Warn("idempotency save failed", logger.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, r *idempotency.Response) {
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}
