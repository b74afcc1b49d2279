package httpserver

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/services"
)

//go:embed templates/*.html
var templateFS embed.FS

const mxPackage = "com.mxtech.videoplayer.ad"

type pages struct {
	home   *template.Template
	player *template.Template
}

func mustLoadPages() *pages {
	return &pages{
		home:   template.Must(template.ParseFS(templateFS, "templates/home.html")),
		player: template.Must(template.ParseFS(templateFS, "templates/player.html")),
	}
}

type homeView struct {
	BotName       string
	BotUsername   string
	OwnerUsername string
}

type playerView struct {
	BotName     string
	Name        string
	Size        string
	Kind        string
	StreamURL   string
	DownloadURL string
	TelegramURL string
	VLCURL      template.URL
	MXURL       template.URL
}

// playerKind picks the embedded player from the MIME type.
func playerKind(info *models.FileInfo) string {
	switch {
	case strings.HasPrefix(info.MimeType, "video/"):
		return models.KindVideo
	case strings.HasPrefix(info.MimeType, "audio/"):
		return models.KindAudio
	default:
		return models.KindDocument
	}
}

func (s *Server) renderHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.pages.home, homeView{
		BotName:       s.cfg.BotName,
		BotUsername:   s.botUsernameFor(r),
		OwnerUsername: s.cfg.OwnerUsername,
	})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("file")
	if token == "" {
		s.writeError(w, r, common.ErrMissingParameter)
		return
	}

	id, err := s.retrieval.Decode(token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.allow(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.retrieval.ResolveID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	username := s.botUsernameFor(r)
	links := services.BuildLinks(s.baseURL(r), username, token)
	if username == "" {
		links.Telegram = ""
	}
	hostPath := strings.TrimPrefix(strings.TrimPrefix(links.Stream, "https://"), "http://")

	s.render(w, r, s.pages.player, playerView{
		BotName:     s.cfg.BotName,
		Name:        info.Name,
		Size:        common.FormatSize(info.Size),
		Kind:        playerKind(info),
		StreamURL:   links.Stream,
		DownloadURL: links.Download,
		TelegramURL: links.Telegram,
		VLCURL:      template.URL("vlc://" + hostPath),
		MXURL:       template.URL("intent:" + links.Stream + "#Intent;package=" + mxPackage + ";end"),
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}
