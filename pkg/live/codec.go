package live

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/recera/formflux/pkg/flux"
	"github.com/recera/formflux/pkg/forms"
)

var (
	// ErrShortFrame indicates a frame too small to carry its header.
	ErrShortFrame = errors.New("live: frame too short")

	// ErrWrongFrame indicates a frame of an unexpected type.
	ErrWrongFrame = errors.New("live: unexpected frame type")
)

// Encoder writes live protocol primitives: varints, length-prefixed
// strings and blobs. Action frames are small, so a fixed scratch buffer
// covers every varint without allocating.
type Encoder struct {
	w       io.Writer
	scratch [binary.MaxVarintLen64]byte
}

// NewEncoder creates a new encoder
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteUvarint writes an unsigned varint
func (e *Encoder) WriteUvarint(v uint64) error {
	n := binary.PutUvarint(e.scratch[:], v)
	_, err := e.w.Write(e.scratch[:n])
	return err
}

// WriteString writes a length-prefixed string
func (e *Encoder) WriteString(s string) error {
	if err := e.WriteUvarint(uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, s)
	return err
}

// WriteBytes writes raw bytes with no prefix
func (e *Encoder) WriteBytes(b []byte) error {
	_, err := e.w.Write(b)
	return err
}

// WriteBlob writes a length-prefixed byte slice
func (e *Encoder) WriteBlob(b []byte) error {
	if err := e.WriteUvarint(uint64(len(b))); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

// Decoder reads live protocol primitives, reusing one growable buffer
// for string reads.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder creates a new decoder
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 256),
	}
}

// ReadUvarint reads an unsigned varint
func (d *Decoder) ReadUvarint() (uint64, error) {
	return binary.ReadUvarint(d)
}

// ReadByte implements io.ByteReader for binary.ReadUvarint
func (d *Decoder) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadString reads a length-prefixed string
func (d *Decoder) ReadString() (string, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return "", err
	}

	if length > uint64(len(d.buf)) {
		d.buf = make([]byte, length)
	}

	if _, err := io.ReadFull(d.r, d.buf[:length]); err != nil {
		return "", err
	}
	return string(d.buf[:length]), nil
}

// ReadBlob reads a length-prefixed byte slice. The result is freshly
// allocated; blobs outlive the decoder as action payloads.
func (d *Decoder) ReadBlob() ([]byte, error) {
	length, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	result := make([]byte, length)
	if _, err := io.ReadFull(d.r, result); err != nil {
		return nil, err
	}
	return result, nil
}

// EncodeAction encodes a form action to a binary action frame. Opaque
// payloads travel as length-prefixed JSON.
func EncodeAction(action flux.Action) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.WriteBytes([]byte{byte(FrameAction)})

	switch a := action.(type) {
	case forms.FormDataPatched:
		enc.WriteBytes([]byte{byte(KindPatch)})
		enc.WriteString(a.FormID)
		if err := writePayload(enc, a.Update); err != nil {
			return nil, err
		}

	case forms.FormSubmit:
		enc.WriteBytes([]byte{byte(KindSubmit)})
		enc.WriteString(a.FormID)
		enc.WriteString(a.FormType)
		if err := writePayload(enc, a.RequestContext); err != nil {
			return nil, err
		}

	case forms.FormReset:
		enc.WriteBytes([]byte{byte(KindReset)})
		enc.WriteString(a.FormID)

	default:
		return nil, fmt.Errorf("live: cannot encode action type %q", action.Type())
	}

	return buf.Bytes(), nil
}

// DecodeAction decodes a binary action frame back into a form action.
func DecodeAction(data []byte) (flux.Action, error) {
	if len(data) < 2 {
		return nil, ErrShortFrame
	}
	if data[0] != byte(FrameAction) {
		return nil, ErrWrongFrame
	}

	dec := NewDecoder(bytes.NewReader(data[2:]))

	switch ActionKind(data[1]) {
	case KindPatch:
		formID, err := dec.ReadString()
		if err != nil {
			return nil, fmt.Errorf("live: decode patch formId: %w", err)
		}
		update, err := readPayload(dec)
		if err != nil {
			return nil, fmt.Errorf("live: decode patch payload: %w", err)
		}
		return forms.FormDataPatched{FormID: formID, Update: update}, nil

	case KindSubmit:
		formID, err := dec.ReadString()
		if err != nil {
			return nil, fmt.Errorf("live: decode submit formId: %w", err)
		}
		formType, err := dec.ReadString()
		if err != nil {
			return nil, fmt.Errorf("live: decode submit formType: %w", err)
		}
		reqCtx, err := readPayload(dec)
		if err != nil {
			return nil, fmt.Errorf("live: decode submit payload: %w", err)
		}
		return forms.FormSubmit{FormID: formID, FormType: formType, RequestContext: reqCtx}, nil

	case KindReset:
		formID, err := dec.ReadString()
		if err != nil {
			return nil, fmt.Errorf("live: decode reset formId: %w", err)
		}
		return forms.FormReset{FormID: formID}, nil

	default:
		return nil, fmt.Errorf("live: unknown action kind 0x%02x", data[1])
	}
}

// EncodeAck encodes an ack frame
func EncodeAck(ack Ack) []byte {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.WriteBytes([]byte{byte(FrameAck)})
	enc.WriteString(ack.FormID)
	enc.WriteUvarint(ack.Version)

	return buf.Bytes()
}

// DecodeAck decodes an ack frame
func DecodeAck(data []byte) (Ack, error) {
	if len(data) < 1 {
		return Ack{}, ErrShortFrame
	}
	if data[0] != byte(FrameAck) {
		return Ack{}, ErrWrongFrame
	}

	dec := NewDecoder(bytes.NewReader(data[1:]))
	formID, err := dec.ReadString()
	if err != nil {
		return Ack{}, fmt.Errorf("live: decode ack formId: %w", err)
	}
	version, err := dec.ReadUvarint()
	if err != nil {
		return Ack{}, fmt.Errorf("live: decode ack version: %w", err)
	}
	return Ack{FormID: formID, Version: version}, nil
}

// writePayload JSON-encodes an opaque payload as a length-prefixed blob.
// nil maps round-trip as nil.
func writePayload(enc *Encoder, payload map[string]any) error {
	if payload == nil {
		return enc.WriteUvarint(0)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("live: encode payload: %w", err)
	}
	return enc.WriteBlob(data)
}

func readPayload(dec *Decoder) (map[string]any, error) {
	data, err := dec.ReadBlob()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
