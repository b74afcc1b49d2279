package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/tgfilestream/internal/flagx"
)

// parseFlags applies the short command-line flags:
//
//	-a string   listen address (":8080")
//	-u string   public base URL used in generated links
//	-t string   bot token
//	-k string   link token secret
//	-n int      storage channel id
//	-o int      bot owner user id
//	-b string   backend: telegram or s3
//	-r string   record store: none, postgres or bolt
//	-d string   PostgreSQL DSN
//	-l string   rate limiter: none, memory or redis
//	-v string   log level
//
// Arguments not listed above are ignored so the -c/-config flag and flags of
// other components do not collide.
func parseFlags(c *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-u", "-t", "-k", "-n", "-o", "-b", "-r", "-d", "-l", "-v"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.ListenAddr, "a", c.ListenAddr, "address and port to listen on")
	fs.StringVar(&c.BaseURL, "u", c.BaseURL, "public base URL")
	fs.StringVar(&c.BotToken, "t", c.BotToken, "bot token")
	fs.StringVar(&c.TokenSecret, "k", c.TokenSecret, "link token secret")
	fs.Int64Var(&c.ChannelID, "n", c.ChannelID, "storage channel id")
	fs.Int64Var(&c.BotOwner, "o", c.BotOwner, "bot owner user id")
	fs.StringVar(&c.Backend, "b", c.Backend, "backend (telegram|s3)")
	fs.StringVar(&c.RecordStore, "r", c.RecordStore, "record store (none|postgres|bolt)")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.RateLimit, "l", c.RateLimit, "rate limiter (none|memory|redis)")
	fs.StringVar(&c.LogLevel, "v", c.LogLevel, "log level")

	return fs.Parse(args)
}
