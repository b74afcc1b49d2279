package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/server/bot"
)

const maxUpdateSize = 1 << 20

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	secret := r.Header.Get(common.SecretTokenHeaderName)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	}

	var u bot.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&u); err != nil {
		s.logger.Warn(ctx, "bad update", "error", err, "request_id", requestID(ctx))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Telegram retries anything but 200, so handler failures are only
	// logged.
	if err := s.bot.Handle(ctx, &u, origin(r)); err != nil {
		s.logger.Error(ctx, "update failed", "update_id", u.UpdateID, "error", err, "request_id", requestID(ctx))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Ok")
}

func (s *Server) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.SetWebhook(r.Context(), s.baseURL(r)+s.cfg.WebhookPath, s.cfg.WebhookSecret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnregisterWebhook(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.SetWebhook(r.Context(), "", "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.api.GetMe(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}

// botUsernameFor returns the bot's username, asking the Bot API once.
func (s *Server) botUsernameFor(r *http.Request) string {
	if s.api == nil {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botUsername != "" {
		return s.botUsername
	}

	me, err := s.api.GetMe(r.Context())
	if err != nil {
		s.logger.Warn(r.Context(), "getMe failed", "error", err)
		return ""
	}
	s.botUsername = me.Username
	return s.botUsername
}
