// Package secure password-protects finished documents.
package secure

import (
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/wudi/pdfmark/canvas"
)

type Algorithm int

const (
	AES Algorithm = iota
	RC4
)

type Options struct {
	UserPassword  string
	OwnerPassword string
	Algorithm     Algorithm
	// KeyLength is 40 or 128 for RC4, 128 or 256 for AES. Zero picks 128.
	KeyLength int
	// AllowAll grants every permission; otherwise only printing is allowed.
	AllowAll bool
}

func (o *Options) validate() error {
	if o.OwnerPassword == "" && o.UserPassword == "" {
		return &canvas.ConfigurationError{Field: "password", Reason: "owner or user password required"}
	}
	if o.OwnerPassword == "" {
		o.OwnerPassword = o.UserPassword
	}
	if o.KeyLength == 0 {
		o.KeyLength = 128
	}
	switch {
	case o.Algorithm == RC4 && (o.KeyLength == 40 || o.KeyLength == 128):
	case o.Algorithm == AES && (o.KeyLength == 128 || o.KeyLength == 256):
	default:
		return &canvas.ConfigurationError{Field: "key length", Reason: fmt.Sprintf("%d bits not supported for this algorithm", o.KeyLength)}
	}
	return nil
}

// Encrypt copies the PDF in to out with standard security applied.
func Encrypt(ctx context.Context, in io.ReadSeeker, out io.Writer, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var conf *model.Configuration
	if opts.Algorithm == RC4 {
		conf = model.NewRC4Configuration(opts.UserPassword, opts.OwnerPassword, opts.KeyLength)
	} else {
		conf = model.NewAESConfiguration(opts.UserPassword, opts.OwnerPassword, opts.KeyLength)
	}
	conf.Permissions = model.PermissionsPrint
	if opts.AllowAll {
		conf.Permissions = model.PermissionsAll
	}
	if err := api.Encrypt(in, out, conf); err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	return nil
}
