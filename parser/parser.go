package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfmark/filters"
	"github.com/wudi/pdfmark/ir/raw"
	"github.com/wudi/pdfmark/observability"
	"github.com/wudi/pdfmark/scanner"
	"github.com/wudi/pdfmark/security"
	"github.com/wudi/pdfmark/xref"
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Password string
	Limits   security.Limits
	Logger   observability.Logger
}

// ErrNotPDF is returned when the input has no %PDF- header near its start.
var ErrNotPDF = errors.New("not a PDF file")

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
// Encrypted input is decrypted while loading; the returned document holds
// plain objects and no longer references its Encrypt dictionary.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	def := security.DefaultLimits()
	if cfg.Limits.MaxDecompressedSize == 0 {
		cfg.Limits.MaxDecompressedSize = def.MaxDecompressedSize
	}
	if cfg.Limits.MaxNestingDepth == 0 {
		cfg.Limits.MaxNestingDepth = def.MaxNestingDepth
	}
	if cfg.Limits.MaxXRefDepth == 0 {
		cfg.Limits.MaxXRefDepth = def.MaxXRefDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	data, err := scanner.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	version, ok := detectHeaderVersion(data)
	if !ok {
		return nil, ErrNotPDF
	}

	fp := filters.Default(filters.Limits{MaxDecompressedSize: p.cfg.Limits.MaxDecompressedSize})
	table, err := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: p.cfg.Limits.MaxXRefDepth,
		Filters:      fp,
	}).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if table.Repaired {
		p.cfg.Logger.Warn("xref table rebuilt from object scan", observability.Int("objects", len(table.Objects())))
	}

	sec, encRef, err := p.selectSecurity(ctx, data, table, fp)
	if err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithSecurity(sec).
		WithLimits(p.cfg.Limits).
		WithFilters(fp).
		Build()
	if err != nil {
		return nil, err
	}

	trailer := raw.DeepCopy(table.Trailer).(*raw.DictObj)
	doc := &raw.Document{
		Objects:     make(map[raw.ObjectRef]raw.Object),
		Trailer:     trailer,
		Version:     version,
		Permissions: sec.Permissions(),
		Encrypted:   sec.IsEncrypted(),
	}

	for _, num := range table.Objects() {
		if num == 0 {
			continue
		}
		entry, _ := table.Lookup(num)
		ref := raw.ObjectRef{Num: num, Gen: entry.Gen}
		if encRef != nil && ref.Num == encRef.Num {
			continue
		}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if table.Repaired {
				p.cfg.Logger.Debug("skipping unreadable object", observability.Int("object", num), observability.Error("error", err))
				continue
			}
			return nil, fmt.Errorf("load object %d: %w", num, err)
		}
		if isStructural(obj) {
			continue
		}
		doc.Objects[ref] = obj
	}

	trailer.Delete("Encrypt")
	for _, k := range []string{"Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length"} {
		trailer.Delete(k)
	}
	populateMetadata(doc)
	p.cfg.Logger.Debug("parsed document",
		observability.String("version", version),
		observability.Int("objects", len(doc.Objects)),
		observability.Bool("encrypted", doc.Encrypted))
	return doc, nil
}

// selectSecurity builds the decryption handler named by the trailer and
// authenticates it with the configured password.
func (p *DocumentParser) selectSecurity(ctx context.Context, data []byte, table *xref.Table, fp *filters.Pipeline) (security.Handler, *raw.ObjectRef, error) {
	encObj, ok := table.Trailer.Get("Encrypt")
	if !ok {
		return security.NoopHandler(), nil, nil
	}
	var (
		encDict *raw.DictObj
		encRef  *raw.ObjectRef
	)
	switch v := encObj.(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		plain, err := (&ObjectLoaderBuilder{}).WithData(data).WithXRef(table).WithLimits(p.cfg.Limits).WithFilters(fp).Build()
		if err != nil {
			return nil, nil, err
		}
		obj, err := plain.Load(ctx, v.R)
		if err != nil {
			return nil, nil, fmt.Errorf("load encrypt dictionary: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
		r := v.R
		encRef = &r
	}
	if encDict == nil {
		return nil, nil, errors.New("encrypt entry is not a dictionary")
	}
	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithFileID(fileIDFromTrailer(table.Trailer)).
		Build()
	if err != nil {
		return nil, nil, err
	}
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		return nil, nil, err
	}
	return handler, encRef, nil
}

func fileIDFromTrailer(trailer *raw.DictObj) []byte {
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

// isStructural reports objects that only describe file layout.
func isStructural(obj raw.Object) bool {
	stm, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	typ, _ := stm.Dict.Name("Type")
	return typ == "XRef" || typ == "ObjStm"
}

func populateMetadata(doc *raw.Document) {
	infoObj, ok := doc.Trailer.Get("Info")
	if !ok {
		return
	}
	info, ok := doc.Resolve(infoObj).(*raw.DictObj)
	if !ok {
		return
	}
	var md raw.DocumentMetadata
	md.Title, _ = doc.TextValue(info, "Title")
	md.Author, _ = doc.TextValue(info, "Author")
	md.Subject, _ = doc.TextValue(info, "Subject")
	md.Keywords, _ = doc.TextValue(info, "Keywords")
	md.Creator, _ = doc.TextValue(info, "Creator")
	md.Producer, _ = doc.TextValue(info, "Producer")
	doc.Metadata = md
}

// detectHeaderVersion looks for %PDF-x.y within the first kilobyte, as
// readers tolerate leading junk.
func detectHeaderVersion(data []byte) (string, bool) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := bytes.Index(head, []byte("%PDF-"))
	if idx < 0 {
		return "", false
	}
	line := string(head[idx+5:])
	if end := strings.IndexAny(line, "\r\n \t%"); end >= 0 {
		line = line[:end]
	}
	return strings.TrimSpace(line), true
}
