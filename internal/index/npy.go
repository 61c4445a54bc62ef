package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"math"
	"regexp"
	"strconv"
	"strings"

	"dory/internal/util"
)

var npyMagic = []byte("\x93NUMPY")

const (
	maxNPYHeader   = 1 << 20
	maxNPYElements = 1 << 28
)

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Dim  int
	Data []float32
}

func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// Stack copies equally sized rows into one matrix.
func Stack(rows [][]float32) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	dim := len(rows[0])
	data := make([]float32, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return Matrix{}, fmt.Errorf("%w: row %d has width %d, expected %d", util.ErrMalformedResult, i, len(r), dim)
		}
		data = append(data, r...)
	}
	return Matrix{Rows: len(rows), Dim: dim, Data: data}, nil
}

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// ReadNPY decodes a 2-D little-endian float32 or float64 array (format versions 1-3).
// A 1-D array of length 0 decodes to an empty matrix. The header shape is checked
// against a fixed element cap and, for files, against the bytes actually present
// before anything is allocated.
func ReadNPY(r io.Reader) (Matrix, error) {
	br := bufio.NewReader(r)
	pre := make([]byte, 8)
	if _, err := io.ReadFull(br, pre); err != nil {
		return Matrix{}, fmt.Errorf("%w: npy preamble: %v", util.ErrIntegrity, err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return Matrix{}, fmt.Errorf("%w: not an npy file", util.ErrIntegrity)
	}
	var headerLen, lenField int
	switch major := pre[6]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("%w: npy header length: %v", util.ErrIntegrity, err)
		}
		headerLen, lenField = int(n), 2
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return Matrix{}, fmt.Errorf("%w: npy header length: %v", util.ErrIntegrity, err)
		}
		if n > maxNPYHeader {
			return Matrix{}, fmt.Errorf("%w: npy header length %d too large", util.ErrIntegrity, n)
		}
		headerLen, lenField = int(n), 4
	default:
		return Matrix{}, fmt.Errorf("%w: unsupported npy version %d", util.ErrIntegrity, major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return Matrix{}, fmt.Errorf("%w: npy header: %v", util.ErrIntegrity, err)
	}
	descr, rows, dim, err := parseHeader(string(header))
	if err != nil {
		return Matrix{}, err
	}
	var itemSize int64
	switch descr {
	case "<f4":
		itemSize = 4
	case "<f8":
		itemSize = 8
	default:
		return Matrix{}, fmt.Errorf("%w: unsupported npy dtype %q", util.ErrIntegrity, descr)
	}
	if rows > maxNPYElements || (dim > 0 && rows > maxNPYElements/dim) {
		return Matrix{}, fmt.Errorf("%w: npy shape (%d, %d) exceeds %d elements", util.ErrIntegrity, rows, dim, maxNPYElements)
	}
	if st, ok := r.(interface{ Stat() (fs.FileInfo, error) }); ok {
		if fi, err := st.Stat(); err == nil && fi.Mode().IsRegular() {
			avail := fi.Size() - int64(len(pre)+lenField+headerLen)
			if need := int64(rows) * int64(dim) * itemSize; need > avail {
				return Matrix{}, fmt.Errorf("%w: npy shape (%d, %d) needs %d data bytes, file has %d", util.ErrIntegrity, rows, dim, need, avail)
			}
		}
	}

	m := Matrix{Rows: rows, Dim: dim, Data: make([]float32, rows*dim)}
	switch descr {
	case "<f4":
		buf := make([]byte, 4*dim)
		for i := 0; i < rows; i++ {
			if _, err := io.ReadFull(br, buf); err != nil {
				return Matrix{}, fmt.Errorf("%w: npy data row %d: %v", util.ErrIntegrity, i, err)
			}
			row := m.Row(i)
			for j := range row {
				row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
			}
		}
	case "<f8":
		buf := make([]byte, 8*dim)
		for i := 0; i < rows; i++ {
			if _, err := io.ReadFull(br, buf); err != nil {
				return Matrix{}, fmt.Errorf("%w: npy data row %d: %v", util.ErrIntegrity, i, err)
			}
			row := m.Row(i)
			for j := range row {
				row[j] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[8*j:])))
			}
		}
	}
	return m, nil
}

func parseHeader(h string) (descr string, rows, dim int, err error) {
	dm := descrRe.FindStringSubmatch(h)
	if dm == nil {
		return "", 0, 0, fmt.Errorf("%w: npy header missing descr", util.ErrIntegrity)
	}
	descr = dm[1]
	if fm := fortranRe.FindStringSubmatch(h); fm != nil && fm[1] == "True" {
		return "", 0, 0, fmt.Errorf("%w: fortran-ordered npy arrays are not supported", util.ErrIntegrity)
	}
	sm := shapeRe.FindStringSubmatch(h)
	if sm == nil {
		return "", 0, 0, fmt.Errorf("%w: npy header missing shape", util.ErrIntegrity)
	}
	var dims []int
	for _, p := range strings.Split(sm[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: bad npy shape %q", util.ErrIntegrity, sm[1])
		}
		dims = append(dims, n)
	}
	switch {
	case len(dims) == 2:
		return descr, dims[0], dims[1], nil
	case len(dims) == 1 && dims[0] == 0:
		return descr, 0, 0, nil
	}
	return "", 0, 0, fmt.Errorf("%w: expected a 2-D npy array, got shape (%s)", util.ErrIntegrity, sm[1])
}

// WriteNPY encodes m as a version 1.0 '<f4' array.
func WriteNPY(w io.Writer, m Matrix) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows, m.Dim)
	// magic(6) + version(2) + length(2) + header + '\n' is padded to a multiple of 64
	total := 10 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy header too long")
	}
	if _, err := w.Write(npyMagic); err != nil {
		return fmt.Errorf("write npy magic: %w", err)
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return fmt.Errorf("write npy version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return fmt.Errorf("write npy header length: %w", err)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}
	buf := make([]byte, 4)
	for _, x := range m.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write npy data: %w", err)
		}
	}
	return nil
}

// SaveNPY writes m to path atomically.
func SaveNPY(path string, m Matrix) error {
	return util.WriteFileAtomic(path, func(w *bufio.Writer) error {
		return WriteNPY(w, m)
	})
}
