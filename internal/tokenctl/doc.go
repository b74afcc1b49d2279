// Package tokenctl implements the operator command line: encoding message
// ids into link tokens, decoding tokens and uploading files to the object
// store backend.
package tokenctl
