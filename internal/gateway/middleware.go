// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/api"
	"github.com/tomtom215/assetguard/internal/channel"
	"github.com/tomtom215/assetguard/internal/logging"
	"github.com/tomtom215/assetguard/internal/middleware"
)

// RouteOptions selects the checks a route requires.
type RouteOptions struct {
	RequireSignature     bool
	RequireSecureChannel bool
}

type sessionContextKey struct{}

// SessionFromContext returns the secure-channel session of a verified
// request, or nil.
func SessionFromContext(ctx context.Context) *channel.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*channel.Session)
	return s
}

// ClientIP returns the host part of r.RemoteAddr. Behind a trusted proxy the
// router's RealIP middleware has already rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestTarget(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// Middleware binds OnRequestStart and OnRequestEnd to a route. Routes that
// require a signature or the secure channel have their body buffered for
// verification; secure routes get their JSON responses wrapped in a
// channel.Envelope.
func (g *Gateway) Middleware(opts RouteOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			tw := newTimingWriter(w, start)
			ctx := r.Context()

			info := RequestInfo{
				Method:               r.Method,
				Target:               requestTarget(r),
				Endpoint:             r.URL.Path,
				Header:               r.Header,
				ClientIP:             ClientIP(r),
				UserAgent:            r.UserAgent(),
				RequireSignature:     opts.RequireSignature,
				RequireSecureChannel: opts.RequireSecureChannel,
			}
			end := ResponseInfo{
				Method:    r.Method,
				ClientIP:  info.ClientIP,
				UserAgent: info.UserAgent,
			}
			finish := func() {
				end.Endpoint = middleware.RoutePattern(r)
				end.Status = tw.Status()
				end.Duration = time.Since(start)
				g.OnRequestEnd(ctx, end)
			}

			buffered := opts.RequireSignature || opts.RequireSecureChannel
			if buffered {
				body, err := readBody(r)
				if err != nil {
					api.NewResponseWriter(tw, r).BadRequest("Request body is unreadable or too large")
					finish()
					return
				}
				info.Body = body
			}

			decision := g.OnRequestStart(ctx, info)
			if !decision.Allow {
				end.Audited = true
				writeError(tw, r, decision.Err)
				finish()
				return
			}

			if buffered {
				r.Body = io.NopCloser(bytes.NewReader(decision.Body))
				r.ContentLength = int64(len(decision.Body))
			}
			if decision.Session != nil {
				ctx = context.WithValue(ctx, sessionContextKey{}, decision.Session)
				r = r.WithContext(ctx)

				buf := newBufferedResponse()
				next.ServeHTTP(buf, r)
				g.writeSecure(ctx, tw, r, buf, decision.Session.ID)
			} else {
				next.ServeHTTP(tw, r)
			}
			finish()
		})
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, api.MaxRequestBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > api.MaxRequestBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", api.MaxRequestBodyBytes)
	}
	return body, nil
}

// writeSecure wraps a successful JSON response for the session. Other
// responses pass through unchanged.
func (g *Gateway) writeSecure(ctx context.Context, w http.ResponseWriter, r *http.Request, buf *bufferedResponse, sessionID string) {
	status := buf.statusCode()
	if status >= http.StatusMultipleChoices || !strings.HasPrefix(buf.header.Get("Content-Type"), "application/json") {
		buf.flushTo(w)
		return
	}

	env, err := g.channel.Wrap(ctx, sessionID, buf.body.Bytes())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to wrap secure response")
		api.NewResponseWriter(w, r).InternalError("Failed to secure response")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		api.NewResponseWriter(w, r).InternalError("Failed to secure response")
		return
	}

	copyHeaders(w.Header(), buf.header)
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(channel.HeaderPayloadEncrypted, "true")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to write secure response")
	}
}

// timingWriter stamps X-Response-Time just before the header is sent.
type timingWriter struct {
	*middleware.StatusRecorder
	start   time.Time
	stamped bool
}

func newTimingWriter(w http.ResponseWriter, start time.Time) *timingWriter {
	return &timingWriter{StatusRecorder: middleware.NewStatusRecorder(w), start: start}
}

func (w *timingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	ms := float64(time.Since(w.start).Microseconds()) / 1000
	w.Header().Set(HeaderResponseTime, fmt.Sprintf("%.2fms", ms))
}

func (w *timingWriter) WriteHeader(code int) {
	w.stamp()
	w.StatusRecorder.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.StatusRecorder.Write(b)
}

// bufferedResponse holds a handler's response until it has been wrapped.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	copyHeaders(w.Header(), b.header)
	w.WriteHeader(b.statusCode())
	_, _ = w.Write(b.body.Bytes())
}

func copyHeaders(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}
