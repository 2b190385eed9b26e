// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"axonflow/agentline/metrics"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	ctxKeyTenantID  contextKey = "tenant_id"
	ctxKeyRequestID contextKey = "request_id"
)

// tenantID returns the authenticated tenant for the request, or "" when
// the route skipped auth.
func tenantID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyTenantID).(string)
	return id
}

// requestID returns the correlation id the middleware attached.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyRequestID).(string)
	return id
}

// requestIDMiddleware attaches a correlation id to every request,
// honoring one the client already sent.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latency per route. The
// mux route template keeps path cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		metrics.ObserveRequest(r.Method, path, http.StatusText(rec.status), float64(time.Since(start).Milliseconds()))
	})
}

// authMiddleware verifies the HS256 bearer token and attaches its
// tenant_id claim to the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}

		tenant, _ := claims["tenant_id"].(string)
		if tenant == "" {
			respondError(w, http.StatusUnauthorized, codeUnauthorized, "token carries no tenant")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyTenantID, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
