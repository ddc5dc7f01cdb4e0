package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/solstice-phys/islands/pkg/component"
	"github.com/solstice-phys/islands/pkg/handle"
)

// GobVisitor is the reference Visitor: every write appends one
// gob-encoded record, every read decodes the next one in order. It
// exists to exercise WriteEntity/ReadEntity end to end in tests; a host
// that cares about wire size or cross-language interop supplies its own
// Visitor.
//
// No third-party codec in the retrieval pack fits a generic,
// type-index-keyed visitor without either dragging in the teacher's
// QUIC-bound wire format (out of scope per the networking-layer
// non-goal) or a protobuf/schema toolchain with no grounding anywhere in
// this corpus; encoding/gob is the stdlib fallback for that gap.
type GobVisitor struct {
	buf bytes.Buffer
	enc *gob.Encoder
	dec *gob.Decoder
}

type componentRecord struct {
	Index component.Index
	Value any
}

func NewGobVisitor() *GobVisitor {
	v := &GobVisitor{}
	v.enc = gob.NewEncoder(&v.buf)
	return v
}

func (v *GobVisitor) WriteComponent(idx component.Index, val any) error {
	return v.enc.Encode(componentRecord{Index: idx, Value: val})
}

func (v *GobVisitor) ReadComponent() (component.Index, any, error) {
	var r componentRecord
	if err := v.decoder().Decode(&r); err != nil {
		return 0, nil, err
	}
	return r.Index, r.Value, nil
}

func (v *GobVisitor) WriteHandle(h handle.Handle) error {
	return v.enc.Encode(h)
}

func (v *GobVisitor) ReadHandle() (handle.Handle, error) {
	var h handle.Handle
	err := v.decoder().Decode(&h)
	return h, err
}

func (v *GobVisitor) WriteCount(n int) error {
	return v.enc.Encode(n)
}

func (v *GobVisitor) ReadCount() (int, error) {
	var n int
	err := v.decoder().Decode(&n)
	return n, err
}

// Bytes returns the accumulated wire payload.
func (v *GobVisitor) Bytes() []byte { return v.buf.Bytes() }

// LoadBytes primes the visitor to read back a payload previously
// produced by Bytes, for a receiver-side GobVisitor distinct from the
// one that encoded it.
func (v *GobVisitor) LoadBytes(data []byte) {
	v.dec = gob.NewDecoder(bytes.NewReader(data))
}

func (v *GobVisitor) decoder() *gob.Decoder {
	if v.dec == nil {
		v.dec = gob.NewDecoder(&v.buf)
	}
	return v.dec
}

// RegisterValue tells encoding/gob about a concrete component type before
// any Encode/Decode call references it through the any-typed record
// field, matching gob's static-registration requirement for interface
// values.
func RegisterValue(v any) {
	gob.Register(v)
}
