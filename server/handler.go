package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/flashbots/mpcauction/metrics"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestSize = 1 << 20

// HandlerConfig contains the settings of the party HTTP handler.
type HandlerConfig struct {
	Party *Party

	// Token is the bearer token every authenticated request must carry.
	// Empty disables authentication.
	Token string

	Log *slog.Logger
}

// Handler exposes a Party over the party HTTP API.
type Handler struct {
	party *Party
	token string
	log   *slog.Logger
}

// NewHandler creates a handler for cfg.Party.
func NewHandler(cfg *HandlerConfig) *Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		party: cfg.Party,
		token: cfg.Token,
		log:   log,
	}
}

// RegisterRoutes mounts every party endpoint on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.countRequests)

		r.Get(protocol.PathStatus, h.status)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post(protocol.PathInitialValues, withBody(h, func(_ *http.Request, req *protocol.InitialValuesRequest) error {
				return h.party.Seed(req)
			}))
			r.Get(protocol.PathInitialValues, h.initialValues)

			r.Post(protocol.PathReset, h.ack(func(*http.Request) error { h.party.Reset(); return nil }))
			r.Post(protocol.PathFactoryReset, h.ack(func(*http.Request) error { h.party.FactoryReset(); return nil }))
			r.Post(protocol.PathResetCalculation, h.ack(func(*http.Request) error { h.party.ResetCalculation(); return nil }))
			r.Post(protocol.PathResetComparison, h.ack(func(*http.Request) error { h.party.ResetComparison(); return nil }))

			r.Get(protocol.PathGetBidders, h.bidders)
			r.Post(protocol.PathSetShares, withBody(h, func(_ *http.Request, req *protocol.SetSharesRequest) error {
				return h.party.SetShares(req)
			}))

			r.Put(protocol.PathRedistributeQ, h.ack(func(*http.Request) error { return h.party.RedistributeQ() }))
			redistributeR := withBody(h, func(r *http.Request, req *protocol.RedistributeRRequest) error {
				return h.party.RedistributeR(r.Context(), req)
			})
			r.Put(protocol.PathRedistributeR, redistributeR)
			r.Post(protocol.PathRedistributeR, redistributeR)
			r.Put(protocol.PathRedistributeU, h.ack(func(r *http.Request) error { return h.party.RedistributeU(r.Context()) }))
			r.Put(protocol.PathCalculateSharedU, h.ack(func(*http.Request) error { return h.party.CalculateSharedU() }))
			r.Put(protocol.PathCalculateMultiplicativeShare, withBody(h, func(_ *http.Request, req *protocol.MultiplicativeShareRequest) error {
				return h.party.CalculateMultiplicativeShare(req)
			}))
			r.Put(protocol.PathCalculateAdditiveShare, withBody(h, func(_ *http.Request, req *protocol.SharePairRequest) error {
				return h.party.CalculateAdditiveShare(req)
			}))
			r.Put(protocol.PathCalculateXorShare, h.ack(func(*http.Request) error { return h.party.CalculateXorShare() }))
			r.Put(protocol.PathSetAdditiveShare+"/{name}", h.ack(func(r *http.Request) error {
				return h.party.SetAdditiveShare(chi.URLParam(r, "name"))
			}))
			r.Put(protocol.PathSetMultiplicativeShare+"/{name}", h.ack(func(r *http.Request) error {
				return h.party.SetMultiplicativeShare(chi.URLParam(r, "name"))
			}))
			r.Put(protocol.PathSetXorShare+"/{name}", h.ack(func(r *http.Request) error {
				return h.party.SetXorShare(chi.URLParam(r, "name"))
			}))
			r.Post(protocol.PathXor, withBody(h, func(_ *http.Request, req *protocol.XorRequest) error {
				return h.party.Xor(req)
			}))

			r.Put(protocol.PathSetTemporaryRandomBitShare+"/{i}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				return h.party.SetTemporaryRandomBitShare(i)
			}))
			r.Put(protocol.PathCalculateShareOfRandomNumber, h.ack(func(*http.Request) error { return h.party.CalculateShareOfRandomNumber() }))
			r.Put(protocol.PathCalculateAComparison, withBody(h, func(_ *http.Request, req *protocol.AComparisonRequest) error {
				return h.party.CalculateAComparison(req)
			}))
			r.Get(protocol.PathReconstructSecret+"/{name}", h.reconstructSecret)

			r.Post(protocol.PathCalculateZComparison, withBody(h, func(_ *http.Request, req *protocol.OpenedARequest) error {
				return h.party.CalculateZComparison(req)
			}))
			r.Put(protocol.PathCalculateAdditiveShareOfZTable+"/{i}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				return h.party.CalculateAdditiveShareOfZTable(i)
			}))
			r.Put(protocol.PathCalculateROfZTable+"/{i}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				return h.party.CalculateROfZTable(r.Context(), i)
			}))
			r.Put(protocol.PathSetZTableToXorShare+"/{i}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				return h.party.SetZTableToXorShare(i)
			}))
			r.Post(protocol.PathPopZZ, h.ack(func(*http.Request) error { return h.party.PopZZ() }))
			r.Post(protocol.PathPrepareZTables, withBody(h, func(_ *http.Request, req *protocol.OpenedARequest) error {
				return h.party.PrepareZTables(req)
			}))
			r.Post(protocol.PathInitializeZAndZ, withBody(h, func(_ *http.Request, req *protocol.InitializeZRequest) error {
				return h.party.InitializeZAndZ(req)
			}))
			r.Put(protocol.PathPrepareForNextRomb+"/{i}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				return h.party.PrepareForNextRomb(i)
			}))
			r.Put(protocol.PathPrepareSharesForResXors+"/{i}/{j}", h.ack(func(r *http.Request) error {
				i, err := indexParam(r, "i")
				if err != nil {
					return err
				}
				j, err := indexParam(r, "j")
				if err != nil {
					return err
				}
				return h.party.PrepareSharesForResXors(i, j)
			}))
			r.Post(protocol.PathCalculateComparisonResult, withBody(h, func(_ *http.Request, req *protocol.OpenedARequest) error {
				return h.party.CalculateComparisonResult(req)
			}))

			r.Post(protocol.PathSubShare, withBody(h, func(_ *http.Request, req *protocol.SubShareMessage) error {
				return h.party.ReceiveSubShare(req)
			}))
			r.Get(protocol.PathShare+"/{name}", h.share)
		})
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &protocol.StatusResponse{Status: "ok", ID: h.party.ID()})
}

func (h *Handler) initialValues(w http.ResponseWriter, r *http.Request) {
	resp, err := h.party.InitialValues()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) bidders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &protocol.BiddersResponse{Bidders: h.party.Bidders()})
}

func (h *Handler) reconstructSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := h.party.Reconstruct(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &protocol.ReconstructResponse{Result: "ok", Secret: protocol.EncodeHex(secret)})
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !protocol.Openable(name) {
		h.writeError(w, r, fmt.Errorf("%w: %q", ErrNotOpenable, name))
		return
	}
	resp, err := h.party.ShareOf(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// authenticate rejects requests without the configured bearer token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, &protocol.ErrorResponse{Detail: "missing or invalid bearer token"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHandled(route, status)
	})
}

// ack adapts a body-less primitive to a handler answering {"result": "ok"}.
func (h *Handler) ack(fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, &protocol.ResultResponse{Result: "ok"})
	}
}

// withBody decodes a JSON body into T before calling fn. An empty body
// decodes to the zero value.
func withBody[T any](h *Handler, fn func(r *http.Request, req *T) error) http.HandlerFunc {
	return h.ack(func(r *http.Request) error {
		defer r.Body.Close()
		var req T
		err := json.NewDecoder(io.LimitReader(r.Body, maxRequestSize)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			h.log.Debug("rejecting malformed body", "path", r.URL.Path, "err", err)
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return fn(r, &req)
	})
}

func indexParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidRequest, name)
	}
	return v, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.log.Warn("party request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, &protocol.ErrorResponse{Detail: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotSeeded), errors.Is(err, ErrOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, ErrNotOpenable):
		return http.StatusForbidden
	case errors.Is(err, ErrPeer):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
