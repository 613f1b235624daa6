package uapi

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// ErrInsufficientData is returned when Unmarshal is given fewer bytes than
// the target struct's wire size.
var ErrInsufficientData = errors.New("uapi: insufficient data")

// Marshal converts a fixed-size wire struct to its little-endian byte
// encoding — the same hand-rolled field-by-field approach as the rest of
// this pack's uapi-style packages, kept here rather than reflection-based
// so the exact byte layout the host expects is explicit at the call site.
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *WriteRequest:
		return marshalWriteRequest(val)
	case *ReadRequest:
		return marshalReadRequest(val)
	case *OpenRequest:
		return marshalOpenRequest(val)
	case *CloseRequest:
		return marshalCloseRequest(val)
	case *LseekRequest:
		return marshalLseekRequest(val)
	case *ExitRequest:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(val.Status))
		return buf
	case *MPFloatingPointer:
		return marshalMPFloatingPointer(val)
	default:
		return nil
	}
}

// Unmarshal is Marshal's inverse.
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *WriteRequest:
		return unmarshalWriteRequest(data, val)
	case *ReadRequest:
		return unmarshalReadRequest(data, val)
	case *OpenRequest:
		return unmarshalOpenRequest(data, val)
	case *CloseRequest:
		return unmarshalCloseRequest(data, val)
	case *LseekRequest:
		return unmarshalLseekRequest(data, val)
	case *MPFloatingPointer:
		return unmarshalMPFloatingPointer(data, val)
	default:
		return errors.New("uapi: unsupported type for Unmarshal")
	}
}

func marshalWriteRequest(r *WriteRequest) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.FD))
	binary.LittleEndian.PutUint64(buf[8:16], r.Data)
	binary.LittleEndian.PutUint64(buf[16:24], r.Len)
	return buf
}

func unmarshalWriteRequest(data []byte, r *WriteRequest) error {
	if len(data) < 24 {
		return ErrInsufficientData
	}
	r.FD = int32(binary.LittleEndian.Uint32(data[0:4]))
	r.Data = binary.LittleEndian.Uint64(data[8:16])
	r.Len = binary.LittleEndian.Uint64(data[16:24])
	return nil
}

func marshalReadRequest(r *ReadRequest) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.FD))
	binary.LittleEndian.PutUint64(buf[8:16], r.Data)
	binary.LittleEndian.PutUint64(buf[16:24], r.Len)
	return buf
}

func unmarshalReadRequest(data []byte, r *ReadRequest) error {
	if len(data) < 24 {
		return ErrInsufficientData
	}
	r.FD = int32(binary.LittleEndian.Uint32(data[0:4]))
	r.Data = binary.LittleEndian.Uint64(data[8:16])
	r.Len = binary.LittleEndian.Uint64(data[16:24])
	return nil
}

func marshalOpenRequest(r *OpenRequest) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], r.Name)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Flags))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.Mode))
	return buf
}

func unmarshalOpenRequest(data []byte, r *OpenRequest) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}
	r.Name = binary.LittleEndian.Uint64(data[0:8])
	r.Flags = int32(binary.LittleEndian.Uint32(data[8:12]))
	r.Mode = int32(binary.LittleEndian.Uint32(data[12:16]))
	return nil
}

func marshalCloseRequest(r *CloseRequest) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.FD))
	return buf
}

func unmarshalCloseRequest(data []byte, r *CloseRequest) error {
	if len(data) < 4 {
		return ErrInsufficientData
	}
	r.FD = int32(binary.LittleEndian.Uint32(data[0:4]))
	return nil
}

func marshalLseekRequest(r *LseekRequest) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.FD))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Whence))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Offset))
	return buf
}

func unmarshalLseekRequest(data []byte, r *LseekRequest) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}
	r.FD = int32(binary.LittleEndian.Uint32(data[0:4]))
	r.Whence = int32(binary.LittleEndian.Uint32(data[4:8]))
	r.Offset = int64(binary.LittleEndian.Uint64(data[8:16]))
	return nil
}

func marshalMPFloatingPointer(p *MPFloatingPointer) []byte {
	buf := make([]byte, 16)
	copy(buf[0:4], p.Signature[:])
	binary.LittleEndian.PutUint32(buf[4:8], p.PhysAddr)
	buf[8] = p.Length
	buf[9] = p.SpecRev
	buf[10] = p.Checksum
	buf[11] = p.FeatureInfo1
	buf[12] = p.FeatureInfo2
	copy(buf[13:16], p.Reserved[:])
	return buf
}

func unmarshalMPFloatingPointer(data []byte, p *MPFloatingPointer) error {
	if len(data) < 16 {
		return ErrInsufficientData
	}
	copy(p.Signature[:], data[0:4])
	p.PhysAddr = binary.LittleEndian.Uint32(data[4:8])
	p.Length = data[8]
	p.SpecRev = data[9]
	p.Checksum = data[10]
	p.FeatureInfo1 = data[11]
	p.FeatureInfo2 = data[12]
	copy(p.Reserved[:], data[13:16])
	return nil
}

// EncodeProxyHandshake writes the proxy's connection preamble: magic, argc, length-prefixed argv entries, envc, length-prefixed
// envp entries — each length and count a little-endian int32.
func EncodeProxyHandshake(w io.Writer, h *ProxyHandshake) error {
	bw := bufio.NewWriter(w)
	if err := writeInt32(bw, h.Magic); err != nil {
		return err
	}
	if err := writeInt32(bw, int32(len(h.Argv))); err != nil {
		return err
	}
	for _, a := range h.Argv {
		if err := writeInt32(bw, int32(len(a))); err != nil {
			return err
		}
		if _, err := bw.Write(a); err != nil {
			return err
		}
	}
	if err := writeInt32(bw, int32(len(h.Envp))); err != nil {
		return err
	}
	for _, e := range h.Envp {
		if err := writeInt32(bw, int32(len(e))); err != nil {
			return err
		}
		if _, err := bw.Write(e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeProxyHandshake is EncodeProxyHandshake's inverse, reading directly
// off a stream (the control channel is a live TCP socket, not a buffer).
func DecodeProxyHandshake(r io.Reader) (*ProxyHandshake, error) {
	h := &ProxyHandshake{}
	magic, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	h.Magic = magic

	argc, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	h.Argv = make([][]byte, argc)
	for i := range h.Argv {
		h.Argv[i], err = readBytes(r)
		if err != nil {
			return nil, err
		}
	}

	envc, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	h.Envp = make([][]byte, envc)
	for i := range h.Envp {
		h.Envp[i], err = readBytes(r)
		if err != nil {
			return nil, err
		}
	}
	return h, nil
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
