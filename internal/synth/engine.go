package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/textconv"
)

// Engine renders synthesized formats.
type Engine struct {
	mf          gdi.Metafiles
	conversions atomic.Uint64
}

// NewEngine returns an Engine using mf for metafile conversions.
func NewEngine(mf gdi.Metafiles) *Engine {
	return &Engine{mf: mf}
}

// Conversions returns the number of successful renders so far.
func (e *Engine) Conversions() uint64 { return e.conversions.Load() }

// Render derives target from source, a live object of format from. lcid
// selects the code pages for text conversions. Any failure is NotAvailable.
func (e *Engine) Render(ctx context.Context, target, from format.ID, source object.Object, lcid textconv.LCID) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap("synthesize", target, errs.KindNotAvailable, err)
	}
	tf, ok := format.FamilyOf(target)
	sf, ok2 := format.FamilyOf(from)
	if !ok || !ok2 || tf != sf || target == from {
		return nil, errs.New("synthesize", target, errs.KindNotAvailable,
			fmt.Sprintf("no conversion from %s", from))
	}

	var (
		out object.Object
		err error
	)
	switch tf {
	case format.FamilyText:
		out, err = renderText(target, from, source, lcid)
	case format.FamilyBitmap:
		out, err = renderBitmap(target, source)
	case format.FamilyMetafile:
		out, err = e.renderMetafile(target, source)
	}
	if err != nil {
		slog.Debug("synthesis failed", "format", target, "from", from, "err", err)
		return nil, errs.Wrap("synthesize", target, errs.KindNotAvailable, err)
	}
	e.conversions.Add(1)
	slog.Debug("synthesized format", "format", target, "from", from)
	return out, nil
}

func renderText(target, from format.ID, source object.Object, lcid textconv.LCID) (object.Object, error) {
	src, ok := source.(object.Global)
	if !ok {
		return nil, fmt.Errorf("text source is %T", source)
	}
	ansi, oem := textconv.CodePages(lcid)
	page := func(id format.ID) textconv.CodePage {
		if id == format.OEMText {
			return oem
		}
		return ansi
	}

	var (
		out []byte
		err error
	)
	switch {
	case from == format.UnicodeText:
		var s string
		if s, err = textconv.DecodeWide(src); err == nil {
			out, err = textconv.Encode(page(target), s)
		}
	case target == format.UnicodeText:
		var s string
		if s, err = textconv.Decode(page(from), src); err == nil {
			out, err = textconv.EncodeWide(s)
		}
	default:
		out, err = textconv.Convert(page(from), page(target), src)
	}
	if err != nil {
		return nil, err
	}
	return object.Global(out), nil
}

func renderBitmap(target format.ID, source object.Object) (object.Object, error) {
	switch src := source.(type) {
	case *object.Bitmap:
		dib, err := gdi.GetDIBits(src, dibHeaderSize(target))
		if err != nil {
			return nil, err
		}
		return object.Global(dib), nil
	case object.Global:
		if target == format.Bitmap {
			return gdi.CreateDIBitmap(src)
		}
		dib, err := gdi.RewriteDIBHeader(src, dibHeaderSize(target))
		if err != nil {
			return nil, err
		}
		return object.Global(dib), nil
	default:
		return nil, fmt.Errorf("bitmap source is %T", source)
	}
}

func dibHeaderSize(f format.ID) int {
	if f == format.DIBV5 {
		return gdi.V5HeaderSize
	}
	return gdi.InfoHeaderSize
}

func (e *Engine) renderMetafile(target format.ID, source object.Object) (object.Object, error) {
	if e.mf == nil {
		return nil, fmt.Errorf("no metafile bridge")
	}
	switch src := source.(type) {
	case object.EnhMetafile:
		frame, err := e.mf.EnhMetaFileFrame(src)
		if err != nil {
			return nil, err
		}
		bits, err := e.mf.WinMetaFileBits(src, object.MMIsotropic)
		if err != nil {
			return nil, err
		}
		hmf, err := e.mf.SetMetaFileBits(bits)
		if err != nil {
			return nil, err
		}
		return &object.MetafilePict{
			MapMode: object.MMIsotropic,
			XExt:    frame.Width(),
			YExt:    frame.Height(),
			HMF:     hmf,
		}, nil
	case *object.MetafilePict:
		bits, err := e.mf.MetaFileBits(src.HMF)
		if err != nil {
			return nil, err
		}
		return e.mf.SetWinMetaFileBits(bits, src)
	default:
		return nil, fmt.Errorf("metafile source is %T", source)
	}
}
