// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package parse

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

func parsePDF(_ context.Context, data []byte) (p *Parsed, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, ragerr.New(ragerr.CodeParseDocumentInvalid, fmt.Sprintf("malformed pdf: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeParseDocumentInvalid, "opening pdf")
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeParseDocumentInvalid, "extracting pdf text")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeParseDocumentInvalid, "reading pdf text")
	}

	title := ""
	if info := r.Trailer().Key("Info"); !info.IsNull() {
		title = info.Key("Title").Text()
	}
	return &Parsed{Title: title, Text: buf.String()}, nil
}
