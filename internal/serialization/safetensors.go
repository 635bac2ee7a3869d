package serialization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/tensor"
)

// Limits applied when reading.
const (
	MaxHeaderSize = 100 << 20
	MaxTensors    = 1 << 16
	MaxNameLength = 1024
)

const metadataKey = "__metadata__"

// Tensor is one named array of a SafeTensors file.
type Tensor struct {
	DType tensor.DataType
	Shape []int
	Data  []float32
}

// NumElements returns the product of the dimensions.
func (t Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type header struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Write encodes tensors in name order.
func Write(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == "" || name == metadataKey || len(name) > MaxNameLength {
			return fmt.Errorf("%w: %q", ErrInvalidTensorName, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		entries[metadataKey] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		if t.NumElements() != len(t.Data) {
			return fmt.Errorf("%w: %s has shape %v and %d values", ErrShapeMismatch, name, t.Shape, len(t.Data))
		}
		dtype, err := dtypeName(t.DType)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		shape := make([]int64, len(t.Shape))
		for i, d := range t.Shape {
			shape[i] = int64(d)
		}
		size := int64(len(t.Data) * t.DType.Size())
		entries[name] = header{DType: dtype, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	hdr, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(hdr))); err != nil {
		return fmt.Errorf("write header size: %w", err)
	}
	if _, err := bw.Write(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, name := range names {
		t := tensors[name]
		if _, err := bw.Write(backend.Encode(t.DType, t.Data)); err != nil {
			return fmt.Errorf("write tensor %s: %w", name, err)
		}
	}
	return bw.Flush()
}

// Read decodes a whole SafeTensors stream.
func Read(r io.Reader) (map[string]Tensor, map[string]string, error) {
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, nil, fmt.Errorf("read header size: %w", err)
	}
	if size > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, size)
	}
	hdr := make([]byte, size)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}
	if len(raw) > MaxTensors {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooManyTensors, len(raw))
	}
	entries := make(map[string]header, len(raw))
	for name, msg := range raw {
		var h header
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		entries[name] = h
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read data: %w", err)
	}
	if err := validate(entries, int64(len(data))); err != nil {
		return nil, nil, err
	}

	tensors := make(map[string]Tensor, len(entries))
	for name, h := range entries {
		dtype, _ := parseDType(h.DType)
		shape := make([]int, len(h.Shape))
		for i, d := range h.Shape {
			shape[i] = int(d)
		}
		tensors[name] = Tensor{
			DType: dtype,
			Shape: shape,
			Data:  backend.Decode(dtype, data[h.DataOffsets[0]:h.DataOffsets[1]]),
		}
	}
	return tensors, metadata, nil
}

// WriteFile writes tensors to path.
func WriteFile(path string, tensors map[string]Tensor, metadata map[string]string) error {
	//nolint:gosec // G304: path comes from the command line
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, tensors, metadata); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads every tensor of path.
func ReadFile(path string) (map[string]Tensor, map[string]string, error) {
	//nolint:gosec // G304: path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Read(bufio.NewReader(f))
}

func dtypeName(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float16:
		return "F16", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

func parseDType(name string) (tensor.DataType, error) {
	switch name {
	case "F32":
		return tensor.Float32, nil
	case "F16":
		return tensor.Float16, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, name)
	}
}
