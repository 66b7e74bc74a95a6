package datastruct

import (
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/datastruct/errors"
)

// Hook observes or transforms every chunk moving through the stream while
// it is on the hook chain. Update sees both directions, Read and Write see
// only theirs and run after Update. Returning nil keeps the chunk as is.
//
// Hooks are compared by identity: HookEnd pops the most recent entry equal
// to its hook, so implementations should be pointer types. Running state
// belongs in ctx.G.State, keyed by the hook.
type Hook interface {
	Init(ctx *Context) error
	Update(data []byte, ctx *Context) ([]byte, error)
	Read(data []byte, ctx *Context) ([]byte, error)
	Write(data []byte, ctx *Context) ([]byte, error)
	End(ctx *Context) error
}

// HookFuncs adapts optional functions to Hook.
type HookFuncs struct {
	InitFunc   func(ctx *Context) error
	UpdateFunc func(data []byte, ctx *Context) ([]byte, error)
	ReadFunc   func(data []byte, ctx *Context) ([]byte, error)
	WriteFunc  func(data []byte, ctx *Context) ([]byte, error)
	EndFunc    func(ctx *Context) error
}

func (h *HookFuncs) Init(ctx *Context) error {
	if h.InitFunc == nil {
		return nil
	}
	return h.InitFunc(ctx)
}

func (h *HookFuncs) Update(data []byte, ctx *Context) ([]byte, error) {
	if h.UpdateFunc == nil {
		return nil, nil
	}
	return h.UpdateFunc(data, ctx)
}

func (h *HookFuncs) Read(data []byte, ctx *Context) ([]byte, error) {
	if h.ReadFunc == nil {
		return nil, nil
	}
	return h.ReadFunc(data, ctx)
}

func (h *HookFuncs) Write(data []byte, ctx *Context) ([]byte, error) {
	if h.WriteFunc == nil {
		return nil, nil
	}
	return h.WriteFunc(data, ctx)
}

func (h *HookFuncs) End(ctx *Context) error {
	if h.EndFunc == nil {
		return nil
	}
	return h.EndFunc(ctx)
}

// IOHook substitutes raw stream access while attached. At most one IO hook
// is attached at a time. Implementations reach the physical stream through
// ctx.G.Raw().
type IOHook interface {
	Init(ctx *Context) error
	Read(ctx *Context, n int) ([]byte, error)
	Write(ctx *Context, data []byte) error
	Seek(ctx *Context, offset int64, whence int) (int64, error)
	Tell(ctx *Context) (int64, error)
	End(ctx *Context) error
}

func applyHook(ctx *Context, f *FieldSpec) error {
	g := ctx.G
	if !f.hookEnd {
		if err := f.hook.Init(ctx); err != nil {
			return err
		}
		g.hooks = append(g.hooks, f.hook)
		Logger().Debug("hook started", zap.String("field", f.name), zap.Int("depth", len(g.hooks)))
		return nil
	}
	for i := len(g.hooks) - 1; i >= 0; i-- {
		if g.hooks[i] != f.hook {
			continue
		}
		g.hooks = append(g.hooks[:i], g.hooks[i+1:]...)
		Logger().Debug("hook ended", zap.String("field", f.name), zap.Int("depth", len(g.hooks)))
		return f.hook.End(ctx)
	}
	return errors.New(g.phase, errors.KindHookState).
		Detail("hook end %q without a matching start", f.name).
		Build()
}

func applyIOHook(ctx *Context, f *FieldSpec) error {
	g := ctx.G
	if !f.hookEnd {
		if g.io != nil {
			return errors.New(g.phase, errors.KindHookState).
				Detail("an IO hook is already attached").
				Build()
		}
		if err := f.ioHook.Init(ctx); err != nil {
			return err
		}
		g.io, g.ioCtx = f.ioHook, ctx
		Logger().Debug("io hook attached", zap.String("field", f.name))
		return nil
	}
	if g.io != f.ioHook {
		return errors.New(g.phase, errors.KindHookState).
			Detail("io end %q does not match the attached IO hook", f.name).
			Build()
	}
	g.io, g.ioCtx = nil, nil
	Logger().Debug("io hook detached", zap.String("field", f.name))
	return f.ioHook.End(ctx)
}

// read returns exactly n bytes, passed through the hook chain.
func (g *Global) read(ctx *Context, n int) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if g.io != nil {
		data, err = g.io.Read(g.ioCtx, n)
		if err != nil {
			return nil, err
		}
		if len(data) < n {
			return nil, errors.InsufficientData(g.phase, n, len(data))
		}
	} else {
		data = make([]byte, n)
		got, err := io.ReadFull(g.stream, data)
		if err != nil {
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.InsufficientData(g.phase, n, got)
			}
			return nil, g.ioError(err, "read")
		}
	}
	for _, h := range g.hooks {
		if data, err = chain(h.Update, data, ctx); err != nil {
			return nil, err
		}
	}
	for _, h := range g.hooks {
		if data, err = chain(h.Read, data, ctx); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// write passes data through the hook chain and writes the result.
func (g *Global) write(ctx *Context, data []byte) error {
	var err error
	for _, h := range g.hooks {
		if data, err = chain(h.Update, data, ctx); err != nil {
			return err
		}
	}
	for _, h := range g.hooks {
		if data, err = chain(h.Write, data, ctx); err != nil {
			return err
		}
	}
	if g.io != nil {
		return g.io.Write(g.ioCtx, data)
	}
	if _, err := g.stream.Write(data); err != nil {
		return g.ioError(err, "write")
	}
	return nil
}

func chain(fn func([]byte, *Context) ([]byte, error), data []byte, ctx *Context) ([]byte, error) {
	out, err := fn(data, ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return data, nil
	}
	return out, nil
}

var (
	errReadOnly  = stderrors.New("stream is read-only")
	errWriteOnly = stderrors.New("stream is write-only")
)

type readOnly struct{ io.ReadSeeker }

func (readOnly) Write([]byte) (int, error) { return 0, errReadOnly }

type writeOnly struct{ io.WriteSeeker }

func (writeOnly) Read([]byte) (int, error) { return 0, errWriteOnly }
