// Package bot handles Bot API updates: uploads become links, /start with a
// token sends the file back and /revoke disables a link.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/services"
	"github.com/dmitrijs2005/tgfilestream/internal/server/telegram"
)

// Update is the subset of a Bot API update the handler consumes.
type Update struct {
	UpdateID int64           `json:"update_id"`
	Message  *models.Message `json:"message,omitempty"`
}

// API is the part of the Bot API client the handler talks to.
type API interface {
	SendMessage(ctx context.Context, chatID, replyTo int64, text string, keyboard [][]telegram.Button) (*models.Message, error)
	SendDocument(ctx context.Context, chatID int64, fileID string) (*models.Message, error)
	SendPhoto(ctx context.Context, chatID int64, fileID string) (*models.Message, error)
	GetMe(ctx context.Context) (*models.User, error)
}

type LinkService interface {
	Publish(ctx context.Context, from *models.User, kind models.FileKind) (*services.Published, error)
	Revoke(ctx context.Context, hash, revokeToken string, isOwner bool) (*models.FileRecord, error)
	ActiveFiles(ctx context.Context, userID int64, limit int) ([]*models.FileRecord, error)
}

type Resolver interface {
	Decode(token string) (int64, error)
	ResolveID(ctx context.Context, id int64) (*models.FileInfo, error)
}

type Options struct {
	Owner         int64
	OwnerUsername string
	Public        bool
	// BaseURL overrides the origin passed to Handle when set.
	BaseURL       string
	MaxUploadSize int64
	MaxStreamSize int64
}

type Handler struct {
	api      API
	links    LinkService
	resolver Resolver
	opts     Options
	logger   logging.Logger

	mu sync.Mutex
	me *models.User
}

func NewHandler(api API, links LinkService, resolver Resolver, opts Options, logger logging.Logger) *Handler {
	return &Handler{
		api:      api,
		links:    links,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With("module", "bot"),
	}
}

// Handle processes one update. origin is the scheme and host the update
// arrived on; it prefixes generated links unless a base URL is configured.
func (h *Handler) Handle(ctx context.Context, u *Update, origin string) error {
	if u == nil || u.Message == nil {
		return nil
	}
	msg := u.Message

	me, err := h.botUser(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	if msg.ViaBot != nil && msg.ViaBot.Username == me.Username {
		return nil
	}
	if strings.Contains(strconv.FormatInt(msg.Chat.ID, 10), "-100") {
		return nil
	}

	base := h.opts.BaseURL
	if base == "" {
		base = origin
	}

	cmd, args := command(msg.Text)
	switch cmd {
	case "/start":
		if len(args) == 0 {
			return h.onStart(ctx, msg)
		}
		return h.onDeepLink(ctx, msg, args[0])
	case "/revoke":
		return h.onRevoke(ctx, msg, args)
	}

	if !h.opts.Public && msg.Chat.ID != h.opts.Owner {
		return h.reply(ctx, msg, "*❌ Access forbidden.*\n📡 Deploy your own filestream bot.", nil)
	}

	kind, err := models.Classify(msg)
	if err != nil {
		return h.reply(ctx, msg, fmt.Sprintf("Send me any file/video/gif/audio *(t<=%s)*.", common.FormatSize(h.opts.MaxUploadSize)), nil)
	}
	return h.onMedia(ctx, msg, kind, me, base)
}

func (h *Handler) botUser(ctx context.Context) (*models.User, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.me != nil {
		return h.me, nil
	}
	me, err := h.api.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	h.me = me
	return me, nil
}

// command splits "/cmd@bot a b" into "/cmd" and its arguments.
func command(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd, fields[1:]
}

func (h *Handler) reply(ctx context.Context, msg *models.Message, text string, keyboard [][]telegram.Button) error {
	_, err := h.api.SendMessage(ctx, msg.Chat.ID, msg.MessageID, text, keyboard)
	return err
}

func (h *Handler) onStart(ctx context.Context, msg *models.Message) error {
	name := "there"
	var userID int64
	if msg.From != nil {
		name = msg.From.FirstName
		userID = msg.From.ID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👋 *Hello %s*,\n\n", name)
	b.WriteString("📂 *Send me any file* (Video, Audio, Document) and I will generate a direct download and streaming link for you.\n\n")
	b.WriteString("📝 *Commands:*\n/revoke [hash] [token] - Revoke a file")

	files, err := h.links.ActiveFiles(ctx, userID, 0)
	if err != nil {
		h.logger.Warn(ctx, "active files not listed", "user_id", userID, "error", err)
	} else if len(files) > 0 {
		fmt.Fprintf(&b, "\n\n📁 *Active files:* %d", len(files))
	}

	return h.reply(ctx, msg, b.String(), nil)
}

func (h *Handler) onDeepLink(ctx context.Context, msg *models.Message, token string) error {
	id, err := h.resolver.Decode(token)
	if err != nil {
		return h.reply(ctx, msg, common.DescInvalidToken, nil)
	}

	info, err := h.resolver.ResolveID(ctx, id)
	if err != nil {
		var be *common.BackendError
		switch {
		case errors.Is(err, common.ErrRevoked):
			return h.reply(ctx, msg, common.DescRevoked, nil)
		case errors.As(err, &be):
			return h.reply(ctx, msg, be.Description, nil)
		default:
			h.logger.Warn(ctx, "deep link not resolved", "message_id", id, "error", err)
			return h.reply(ctx, msg, "Bad Request: File not found", nil)
		}
	}

	if info.Kind == models.KindPhoto {
		_, err = h.api.SendPhoto(ctx, msg.Chat.ID, info.FileID)
	} else {
		_, err = h.api.SendDocument(ctx, msg.Chat.ID, info.FileID)
	}
	return err
}

func (h *Handler) onRevoke(ctx context.Context, msg *models.Message, args []string) error {
	if len(args) == 0 {
		return h.reply(ctx, msg, "*📝 Revoke Command Usage:*\n\n"+
			"For users: `/revoke [file_hash] [revoke_token]`\n"+
			"For owner: `/revoke [file_hash]`\n\n"+
			"Example: `/revoke ABCD1234 TOKEN123`", nil)
	}

	var revokeToken string
	if len(args) > 1 {
		revokeToken = args[1]
	}
	isOwner := msg.From != nil && msg.From.ID == h.opts.Owner

	rec, err := h.links.Revoke(ctx, args[0], revokeToken, isOwner)
	if err != nil {
		return h.reply(ctx, msg, "❌ *Error:* "+revokeFailure(err), nil)
	}

	return h.reply(ctx, msg, "✅ *File revoked successfully*\n\n"+
		"📂 *File:* `"+rec.Name+"`\n"+
		"🗑️ The file has been deleted from the channel and all links are now inactive.", nil)
}

func revokeFailure(err error) string {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return "File not found"
	case errors.Is(err, common.ErrRevoked):
		return "File already revoked"
	case errors.Is(err, common.ErrUnauthorized):
		return "Invalid revoke token"
	case errors.Is(err, services.ErrNoRecordStore):
		return "Database not available"
	default:
		return "Error revoking file"
	}
}

func (h *Handler) onMedia(ctx context.Context, msg *models.Message, kind models.FileKind, me *models.User, base string) error {
	info, err := models.Describe(msg.MessageID, kind)
	if err != nil {
		return err
	}
	if h.opts.MaxUploadSize > 0 && info.Size > h.opts.MaxUploadSize {
		return h.reply(ctx, msg, fmt.Sprintf("❌ File is too large: %s, the limit is %s.",
			common.FormatSize(info.Size), common.FormatSize(h.opts.MaxUploadSize)), nil)
	}

	pub, err := h.links.Publish(ctx, msg.From, kind)
	if err != nil {
		var be *common.BackendError
		switch {
		case errors.As(err, &be):
			return h.reply(ctx, msg, "❌ Error forwarding to channel:\n"+be.Description, nil)
		case errors.Is(err, services.ErrNoMessageID):
			return h.reply(ctx, msg, "❌ Error: Channel did not return a message ID.", nil)
		default:
			h.logger.Error(ctx, "publish failed", "error", err)
			return h.reply(ctx, msg, "❌ *Critical Error:*\n"+err.Error(), nil)
		}
	}

	h.logger.Info(ctx, "file published", "message_id", pub.Info.MessageID, "size", pub.Info.Size)

	text, keyboard := h.publishedReply(pub, services.BuildLinks(base, me.Username, pub.Hash))
	return h.reply(ctx, msg, text, keyboard)
}

func (h *Handler) publishedReply(pub *services.Published, links services.Links) (string, [][]telegram.Button) {
	streamable := h.opts.MaxStreamSize <= 0 || pub.Info.Size <= h.opts.MaxStreamSize

	var b strings.Builder
	b.WriteString("*✨ New file generated*\n\n")
	fmt.Fprintf(&b, "📂 *File name:* `%s`\n", pub.Info.Name)
	fmt.Fprintf(&b, "💾 *File size:* `%s`\n", common.FormatSize(pub.Info.Size))
	fmt.Fprintf(&b, "📊 *File type:* `%s`\n", pub.Info.MimeType)
	if pub.RevokeToken != "" {
		fmt.Fprintf(&b, "🔐 *Revoke token:* `%s`\n", pub.RevokeToken)
	}
	if streamable {
		fmt.Fprintf(&b, "\n*🔗 Stream link:* `%s`\n", links.Stream)
	} else {
		fmt.Fprintf(&b, "\n*📥 Download link:* `%s`\n", links.Download)
	}
	if pub.RevokeToken != "" {
		fmt.Fprintf(&b, "\n⚠️ *Save your revoke token to delete this file later:* `/revoke %s %s`", pub.Hash, pub.RevokeToken)
	}

	var keyboard [][]telegram.Button
	if streamable {
		keyboard = append(keyboard,
			[]telegram.Button{{Text: "🌐 Stream page", URL: links.StreamPage}},
			[]telegram.Button{{Text: "📥 Download", URL: links.Download}, {Text: "🔗 Stream", URL: links.Stream}},
		)
	} else {
		keyboard = append(keyboard, []telegram.Button{{Text: "📥 Download", URL: links.Download}})
	}
	keyboard = append(keyboard, []telegram.Button{{Text: "💬 Telegram", URL: links.Telegram}})
	if h.opts.OwnerUsername != "" {
		keyboard = append(keyboard, []telegram.Button{{Text: "👑 Owner", URL: "https://t.me/" + h.opts.OwnerUsername}})
	}

	return b.String(), keyboard
}
