// Package common contains shared constants and sentinel errors used across
// tgfilestream components.
package common

// SecretTokenHeaderName is the header Telegram sets on webhook deliveries
// when the webhook was registered with a secret token.
const SecretTokenHeaderName = "X-Telegram-Bot-Api-Secret-Token"

// Delivery modes accepted by the file endpoint.
const (
	ModeAttachment = "attachment"
	ModeInline     = "inline"
	ModeStream     = "stream"
)

// ValidMode reports whether m is one of the accepted delivery modes.
func ValidMode(m string) bool {
	switch m {
	case ModeAttachment, ModeInline, ModeStream:
		return true
	}
	return false
}

// PartialMode reports whether byte ranges are honored for the given mode.
func PartialMode(m string) bool {
	return m == ModeInline || m == ModeStream
}

// Client-facing error descriptions. Links and bots already in circulation
// match on these strings, so they are kept verbatim.
const (
	DescMissingParameter = "Bad Request: missing /?file= parameter"
	DescMethodNotAllowed = "Bad Request: method not allowed"
	DescInvalidFileType  = "Bad Request: file type invalid"
	DescInvalidToken     = "Bad Request: file hash invalid by atob"
	DescInvalidMode      = "Bad Request: mode not in [attachment, inline]"
	DescRevoked          = "File has been revoked"
)
