// Package handler exposes the card pipeline over HTTP: public verification
// and image fetch, plus the admin trigger endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"campuscard/internal/blob"
	"campuscard/internal/card/models"
	"campuscard/internal/card/service"
	"campuscard/internal/trigger"
	dErrors "campuscard/pkg/domain-errors"
	"campuscard/pkg/platform/httputil"
	"campuscard/pkg/platform/sentinel"
)

// Handler wires the card endpoints to the pipeline service.
type Handler struct {
	svc      *service.Service
	triggers *trigger.Triggers
	blobs    *blob.Client
	signer   *Signer
	logger   *slog.Logger
}

// New constructs the handler with its dependencies.
func New(svc *service.Service, triggers *trigger.Triggers, blobs *blob.Client, signer *Signer, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		triggers: triggers,
		blobs:    blobs,
		signer:   signer,
		logger:   logger,
	}
}

// Register mounts the public endpoints and, behind adminOnly, the trigger and
// lifecycle endpoints.
func (h *Handler) Register(r chi.Router, adminOnly func(http.Handler) http.Handler) {
	r.Get("/verify/{uid}/{token}", h.HandleVerify)
	r.Get("/verify/{uid}", h.HandleVerify)
	r.Get("/cards/{uid}/image", h.HandleFetchImage)
	r.Get("/cards/image/{sig}", h.HandleRedeemImage)

	r.Group(func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/admin/subjects/{id}/approve", h.HandleApprove)
		r.Post("/admin/subjects/{id}/regenerate", h.HandleRegenerate)
		r.Post("/admin/sweep", h.HandleSweep)
		r.Post("/admin/cards/{uid}/revoke", h.HandleRevoke)
		r.Post("/admin/cards/{uid}/restore", h.HandleRestore)
		r.Post("/admin/cards/{uid}/rotate-token", h.HandleRotateToken)
	})
}

// HandleVerify handles GET /verify/{uid}/{token} and the legacy tokenless
// form. Failures come back as {valid:false, reason} rather than the standard
// error envelope, since the consumer is a scanning client.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		// A malformed UID is indistinguishable from an unknown one.
		h.writeInvalid(w, dErrors.New(dErrors.CodeInvalidToken, "unknown card"))
		return
	}
	token := chi.URLParam(r, "token")

	result, err := h.svc.Verify(ctx, uid, token)
	if err != nil {
		h.writeInvalid(w, err)
		return
	}

	attrs := append([]any{
		"card_uid", uid,
		"authenticated", result.Authenticated,
	}, scanDevice(r)...)
	h.logger.InfoContext(ctx, "card verified", attrs...)

	body := result.Summary()
	body["authenticated"] = result.Authenticated
	httputil.WriteJSON(w, http.StatusOK, body)
}

// scanDevice summarizes the scanning client for the verification log line.
// Verifications come overwhelmingly from phones; the device breakdown tells
// apart real scans from scripted probing.
func scanDevice(r *http.Request) []any {
	ua := useragent.New(r.UserAgent())
	browser, version := ua.Browser()
	return []any{
		"device_os", ua.OS(),
		"device_browser", strings.TrimSpace(browser + " " + version),
		"device_mobile", ua.Mobile(),
		"device_bot", ua.Bot(),
	}
}

func (h *Handler) writeInvalid(w http.ResponseWriter, err error) {
	httputil.WriteJSON(w, httputil.StatusOf(err), map[string]any{
		"valid":  false,
		"reason": string(dErrors.CodeOf(err)),
	})
}

// HandleFetchImage handles GET /cards/{uid}/image. The stored blob is healed
// first when needed; a healthy reference redirects to a short-lived signed
// link, a degraded render streams directly.
func (h *Handler) HandleFetchImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown card"))
		return
	}

	result, err := h.svc.FetchImage(ctx, uid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if result.Degraded {
		h.streamImage(w, r, result.Bytes)
		return
	}

	sig, err := h.signer.Sign(result.Ref)
	if err != nil {
		h.logger.ErrorContext(ctx, "signing fetch link failed", "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, ""))
		return
	}
	location := "/cards/image/" + sig
	if r.URL.Query().Get("download") == "1" {
		location += "?download=1"
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// HandleRedeemImage handles GET /cards/image/{sig}: validates the signed link
// and hands out the image, redirecting to the backend when it serves objects
// by URL and streaming the bytes when it does not.
func (h *Handler) HandleRedeemImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, err := h.signer.Redeem(chi.URLParam(r, "sig"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Direct downloads keep streaming so the disposition header applies.
	if r.URL.Query().Get("download") != "1" {
		if location, err := h.blobs.URL(ctx, ref); err == nil {
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
	}

	data, err := h.blobs.Fetch(ctx, ref)
	if err != nil {
		// The blob vanished inside the link's TTL; the caller retries
		// through the healing endpoint.
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "image not retrievable, retry the fetch", sentinel.ErrUnavailable))
		return
	}
	h.streamImage(w, r, data)
}

func (h *Handler) streamImage(w http.ResponseWriter, r *http.Request, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="id-card.png"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleApprove handles POST /admin/subjects/{id}/approve: queues a
// generation for a freshly approved application.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectID(w, r)
	if !ok {
		return
	}
	h.triggers.OnApprovalApproved(subjectID)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleRegenerate handles POST /admin/subjects/{id}/regenerate: marks the
// card stale and queues a rebuild.
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.subjectID(w, r)
	if !ok {
		return
	}
	h.triggers.OnManualEdit(subjectID)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleSweep handles POST /admin/sweep: queues a full maintenance sweep.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	h.triggers.OnMaintenanceSweep()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

// HandleRevoke handles POST /admin/cards/{uid}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	card, ok := h.cardByUID(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reason is required"))
		return
	}

	if err := h.svc.Revoke(ctx, card.SubjectID, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// HandleRestore handles POST /admin/cards/{uid}/restore.
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	card, ok := h.cardByUID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Restore(ctx, card.SubjectID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// HandleRotateToken handles POST /admin/cards/{uid}/rotate-token.
func (h *Handler) HandleRotateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	card, ok := h.cardByUID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RotateToken(ctx, card.SubjectID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "rotated"})
}

func (h *Handler) subjectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed subject id"))
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) cardByUID(w http.ResponseWriter, r *http.Request) (*models.Artifact, bool) {
	uid, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed card uid"))
		return nil, false
	}
	card, err := h.svc.CardByUID(r.Context(), uid)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return card, true
}
