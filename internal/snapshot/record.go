package snapshot

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// record is a msgpack encoder over an in-memory buffer. Writes to a
// bytes.Buffer cannot fail, so the shadowing methods drop the errors.
type record struct {
	*msgpack.Encoder
	buf *bytes.Buffer
}

func newRecord() *record {
	buf := new(bytes.Buffer)
	return &record{Encoder: msgpack.NewEncoder(buf), buf: buf}
}

func (r *record) Bytes() []byte { return r.buf.Bytes() }

func (r *record) EncodeUint8(n uint8) {
	r.Encoder.EncodeUint8(n)
}

func (r *record) EncodeUint32(n uint32) {
	r.Encoder.EncodeUint32(n)
}

func (r *record) EncodeInt(n int64) {
	r.Encoder.EncodeInt(n)
}

func (r *record) EncodeString(s string) {
	r.Encoder.EncodeString(s)
}

func (r *record) EncodeBytes(b []byte) {
	r.Encoder.EncodeBytes(b)
}

func (r *record) EncodeArrayLen(n int) {
	r.Encoder.EncodeArrayLen(n)
}

func (r *record) EncodeMapLen(n int) {
	r.Encoder.EncodeMapLen(n)
}

// pool deduplicates strings for the constant pool.
type pool struct {
	index   map[string]int
	strings []string
}

func newPool() *pool {
	return &pool{index: make(map[string]int)}
}

// ref returns the pool index of s, adding it when new.
func (p *pool) ref(s string) int64 {
	if i, ok := p.index[s]; ok {
		return int64(i)
	}
	i := len(p.strings)
	p.index[s] = i
	p.strings = append(p.strings, s)
	return int64(i)
}

// encodeRef writes the pool index of s.
func (r *record) encodeRef(p *pool, s string) {
	r.EncodeInt(p.ref(s))
}

// decoder reads one section body, resolving pool references.
type decoder struct {
	*msgpack.Decoder
	src     *bytes.Reader
	strings []string
	section string
}

func newDecoder(body []byte, strings []string, section string) *decoder {
	src := bytes.NewReader(body)
	return &decoder{Decoder: msgpack.NewDecoder(src), src: src, strings: strings, section: section}
}

func (d *decoder) fail(what string, err error) error {
	return malformed(d.section+": "+what, err)
}

func (d *decoder) ref() (string, error) {
	i, err := d.DecodeInt()
	if err != nil {
		return "", d.fail("pool reference", err)
	}
	if i < 0 || i >= len(d.strings) {
		return "", d.fail("pool reference out of range", nil)
	}
	return d.strings[i], nil
}

func (d *decoder) length(what string) (int, error) {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return 0, d.fail(what, err)
	}
	if n < 0 || n > d.src.Len()+1 {
		// Every element takes at least one byte.
		return 0, d.fail(what+": implausible length", nil)
	}
	return n, nil
}

func (d *decoder) mapLength(what string) (int, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return 0, d.fail(what, err)
	}
	if n < 0 || n > d.src.Len()+1 {
		return 0, d.fail(what+": implausible length", nil)
	}
	return n, nil
}

func (d *decoder) integer(what string) (int, error) {
	n, err := d.DecodeInt()
	if err != nil {
		return 0, d.fail(what, err)
	}
	return n, nil
}

func (d *decoder) done() error {
	if d.src.Len() != 0 {
		return d.fail("trailing bytes", nil)
	}
	return nil
}
