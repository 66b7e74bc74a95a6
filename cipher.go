package datastruct

import (
	"crypto/cipher"
	stderrors "errors"
	"io"

	"github.com/wippyai/datastruct/errors"
)

// BlockCipher is an IO hook that encrypts everything between its IOStart
// and IOEnd markers one block at a time. Reads pull whole blocks and buffer
// the decrypted remainder; writes buffer until a whole block is available.
// Seeking is not supported while attached.
//
// Each block is transformed independently. Chaining modes are the
// caller's business: wrap the block with a stateful cipher.Block if needed.
type BlockCipher struct {
	block cipher.Block
}

// NewBlockCipher returns an IO hook over b.
func NewBlockCipher(b cipher.Block) *BlockCipher {
	return &BlockCipher{block: b}
}

type cipherState struct {
	buf   []byte
	start int64
	pos   int64
}

func (c *BlockCipher) state(ctx *Context) *cipherState {
	st, _ := ctx.G.State(c).(*cipherState)
	return st
}

func (c *BlockCipher) Init(ctx *Context) error {
	start, err := ctx.G.Raw().Seek(0, io.SeekCurrent)
	if err != nil {
		return ctx.G.ioError(err, "tell")
	}
	ctx.G.SetState(c, &cipherState{start: start})
	return nil
}

func (c *BlockCipher) Read(ctx *Context, n int) ([]byte, error) {
	st := c.state(ctx)
	bs := c.block.BlockSize()
	if missing := n - len(st.buf); missing > 0 {
		chunk := make([]byte, missing+PadUp(missing, bs))
		got, err := io.ReadFull(ctx.G.Raw(), chunk)
		if err != nil {
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.InsufficientData(ctx.G.phase, len(chunk), got)
			}
			return nil, ctx.G.ioError(err, "read")
		}
		for off := 0; off < len(chunk); off += bs {
			c.block.Decrypt(chunk[off:off+bs], chunk[off:off+bs])
		}
		st.buf = append(st.buf, chunk...)
	}
	out := make([]byte, n)
	copy(out, st.buf)
	st.buf = st.buf[n:]
	st.pos += int64(n)
	return out, nil
}

func (c *BlockCipher) Write(ctx *Context, data []byte) error {
	st := c.state(ctx)
	bs := c.block.BlockSize()
	st.buf = append(st.buf, data...)
	st.pos += int64(len(data))
	full := len(st.buf) / bs * bs
	if full == 0 {
		return nil
	}
	out := make([]byte, full)
	for off := 0; off < full; off += bs {
		c.block.Encrypt(out[off:off+bs], st.buf[off:off+bs])
	}
	st.buf = append(st.buf[:0], st.buf[full:]...)
	if _, err := ctx.G.Raw().Write(out); err != nil {
		return ctx.G.ioError(err, "write")
	}
	return nil
}

func (c *BlockCipher) Seek(ctx *Context, offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekCurrent {
		return c.Tell(ctx)
	}
	return 0, errors.Unsupported(ctx.G.phase, "seeking inside an encrypted block stream")
}

func (c *BlockCipher) Tell(ctx *Context) (int64, error) {
	st := c.state(ctx)
	return st.start + st.pos, nil
}

// End rejects a partial block on write. On read it leaves the raw stream at
// the logical position, dropping any decrypted bytes not consumed.
func (c *BlockCipher) End(ctx *Context) error {
	st := c.state(ctx)
	ctx.G.SetState(c, nil)
	if ctx.G.Packing {
		if len(st.buf) > 0 {
			return errors.New(ctx.G.phase, errors.KindInvalidData).
				Value(len(st.buf)).
				Detail("encrypted data is not a multiple of the block size (%d bytes left)", len(st.buf)).
				Build()
		}
		return nil
	}
	if _, err := ctx.G.Raw().Seek(st.start+st.pos, io.SeekStart); err != nil {
		return ctx.G.ioError(err, "seek")
	}
	return nil
}
