package tokenctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/objectstore"
	"github.com/dmitrijs2005/tgfilestream/internal/server/services"
	"github.com/spf13/pflag"
)

const usage = `Usage: tokenctl [flags] <command> [args]

Commands:
  encode <id>...     print a link token for each message id
  decode <token>...  print the message id carried by each token
  put <file>         upload file to the object store and print its token

Flags:
`

var ErrUsage = errors.New("usage error")

// Uploader stores a file and describes it as a message.
type Uploader interface {
	Put(ctx context.Context, name, mimeType, kind string, size int64, body io.Reader) (*models.Message, error)
}

type App struct {
	out    io.Writer
	errOut io.Writer
	lookup func(string) (string, bool)

	newUploader func(ctx context.Context, opts objectstore.Options, logger logging.Logger) (Uploader, error)
}

func NewApp(out, errOut io.Writer) *App {
	return &App{
		out:    out,
		errOut: errOut,
		lookup: os.LookupEnv,
		newUploader: func(ctx context.Context, opts objectstore.Options, logger logging.Logger) (Uploader, error) {
			return objectstore.New(ctx, opts, logger)
		},
	}
}

type options struct {
	secret   string
	baseURL  string
	botName  string
	logLevel string
	kind     string
	mimeType string
	store    objectstore.Options
}

func (a *App) env(key, def string) string {
	if v, ok := a.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (a *App) flags(o *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("tokenctl", pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {
		fmt.Fprint(a.errOut, usage)
		fs.PrintDefaults()
	}

	fs.StringVarP(&o.secret, "secret", "s", a.env("SIA_SECRET", ""), "token secret (prompted when empty)")
	fs.StringVarP(&o.baseURL, "base-url", "b", a.env("BASE_URL", ""), "print links under this base URL")
	fs.StringVar(&o.botName, "bot", "", "bot username for deep links")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level for upload diagnostics")
	fs.StringVar(&o.kind, "kind", "", "file kind for put: document, audio or video (from MIME type when empty)")
	fs.StringVar(&o.mimeType, "mime", "", "MIME type for put (from the file extension when empty)")

	fs.StringVar(&o.store.Bucket, "bucket", a.env("S3_BUCKET", "filestream"), "object store bucket")
	fs.StringVar(&o.store.Region, "region", a.env("S3_REGION", "us-east-1"), "object store region")
	fs.StringVar(&o.store.Endpoint, "endpoint", a.env("S3_BASE_ENDPOINT", ""), "object store endpoint")
	fs.StringVar(&o.store.Prefix, "prefix", a.env("S3_PREFIX", ""), "object key prefix")
	o.store.User = a.env("S3_ROOT_USER", "")
	o.store.Password = a.env("S3_ROOT_PASSWORD", "")

	return fs
}

// Run parses args and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	var o options
	fs := a.flags(&o)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return ErrUsage
	}
	cmd, operands := rest[0], rest[1:]

	switch cmd {
	case "encode", "decode", "put":
	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	codec, err := a.codec(o.secret)
	if err != nil {
		return err
	}

	switch cmd {
	case "encode":
		return a.encode(codec, operands)
	case "decode":
		return a.decode(codec, operands)
	default:
		if len(operands) != 1 {
			return fmt.Errorf("%w: put takes exactly one file", ErrUsage)
		}
		return a.put(ctx, codec, o, operands[0])
	}
}

func (a *App) codec(secret string) (*cryptox.Codec, error) {
	if secret == "" {
		s, err := promptSecret(a.errOut)
		if err != nil {
			return nil, fmt.Errorf("read secret: %w", err)
		}
		secret = s
	}
	return cryptox.NewCodec(secret)
}

func (a *App) encode(codec *cryptox.Codec, ids []string) error {
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("%w: %q is not a message id", ErrUsage, raw)
		}
		fmt.Fprintln(a.out, codec.EncodeID(id))
	}
	return nil
}

func (a *App) decode(codec *cryptox.Codec, tokens []string) error {
	for _, token := range tokens {
		text, err := codec.Decode(token)
		if err != nil {
			return fmt.Errorf("%s: %w", token, err)
		}
		fmt.Fprintln(a.out, text)
	}
	return nil
}

func (a *App) put(ctx context.Context, codec *cryptox.Codec, o options, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	mimeType := o.mimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	kind := o.kind
	if kind == "" {
		kind = kindFor(mimeType)
	}

	store, err := a.newUploader(ctx, o.store, logging.NewJSONLogger(a.errOut, o.logLevel))
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	msg, err := store.Put(ctx, name, mimeType, kind, st.Size(), f)
	if err != nil {
		return err
	}

	token := codec.EncodeID(msg.MessageID)
	fmt.Fprintf(a.out, "message_id: %d\ntoken: %s\n", msg.MessageID, token)

	if o.baseURL != "" {
		links := services.BuildLinks(o.baseURL, o.botName, token)
		fmt.Fprintf(a.out, "page: %s\nstream: %s\ndownload: %s\n", links.StreamPage, links.Stream, links.Download)
		if o.botName != "" {
			fmt.Fprintf(a.out, "telegram: %s\n", links.Telegram)
		}
	}
	return nil
}

func kindFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return models.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.KindAudio
	default:
		return models.KindDocument
	}
}
