package rag

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Backend names.
const (
	BackendFlat    = "flat"
	BackendChromem = "chromem"
)

// Neighbor is one search hit: the ordinal of the stored vector and its distance
// to the query. Smaller distances are closer.
type Neighbor struct {
	Ordinal  int
	Distance float32
}

// Index stores vectors by ordinal and answers k-nearest-neighbour queries.
// The generation ties a saved index to the metadata written in the same ingest.
type Index interface {
	Backend() string
	Len() int
	Dimension() int
	Generation() uuid.UUID
	SetGeneration(id uuid.UUID)
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Save(path string) error
}

// NewIndex creates an empty index for the named backend.
func NewIndex(backend string, dim int) (Index, error) {
	switch backend {
	case "", BackendFlat:
		return NewFlatIndex(dim), nil
	case BackendChromem:
		return NewChromemIndex(dim)
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

// LoadIndex reads an index file written by the named backend.
func LoadIndex(backend, path string, dim int) (Index, error) {
	switch backend {
	case "", BackendFlat:
		return LoadFlatIndex(path)
	case BackendChromem:
		return LoadChromemIndex(path, dim)
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

var flatMagic = [4]byte{'S', 'V', 'I', 'X'}

const flatVersion uint32 = 2

// FlatIndex performs exhaustive squared-L2 search over contiguous float32 rows.
type FlatIndex struct {
	mu   sync.RWMutex
	dim  int
	gen  uuid.UUID
	data []float32
}

// NewFlatIndex creates an empty index of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Backend returns BackendFlat.
func (f *FlatIndex) Backend() string { return BackendFlat }

// Dimension returns the vector size.
func (f *FlatIndex) Dimension() int { return f.dim }

// Generation returns the ingest generation recorded in the header.
func (f *FlatIndex) Generation() uuid.UUID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gen
}

// SetGeneration stamps the index with an ingest generation.
func (f *FlatIndex) SetGeneration(id uuid.UUID) {
	f.mu.Lock()
	f.gen = id
	f.mu.Unlock()
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors; ordinals continue from the current length.
func (f *FlatIndex) Add(_ context.Context, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), f.dim)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search returns up to k neighbours ordered by ascending squared L2 distance.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	if f.dim > 0 {
		n = len(f.data) / f.dim
	}
	hits := make([]Neighbor, 0, n)
	for i := 0; i < n; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := f.data[i*f.dim : (i+1)*f.dim]
		hits = append(hits, Neighbor{Ordinal: i, Distance: squaredL2(query, row)})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type flatHeader struct {
	Magic      [4]byte
	Version    uint32
	Generation [16]byte
	Dim        uint32
	Count      uint64
}

// Save writes the index in a little-endian binary layout: header then rows.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	w := bufio.NewWriter(file)
	count := uint64(0)
	if f.dim > 0 {
		count = uint64(len(f.data) / f.dim)
	}
	hdr := flatHeader{Magic: flatMagic, Version: flatVersion, Generation: f.gen, Dim: uint32(f.dim), Count: count}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		file.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write index vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	return file.Close()
}

// LoadFlatIndex reads an index written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	r := bufio.NewReader(file)
	var hdr flatHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("corrupt index header: %w", err)
	}
	if hdr.Magic != flatMagic {
		return nil, errors.New("corrupt index: bad magic")
	}
	if hdr.Version != flatVersion {
		return nil, fmt.Errorf("unsupported index version %d", hdr.Version)
	}
	if hdr.Dim == 0 && hdr.Count > 0 {
		return nil, errors.New("corrupt index: zero dimension")
	}

	headerSize := int64(binary.Size(hdr))
	values := hdr.Count * uint64(hdr.Dim)
	if values > math.MaxInt32 || headerSize+int64(values)*4 != info.Size() {
		return nil, fmt.Errorf("corrupt index: header declares %d vectors of dimension %d, file has %d bytes",
			hdr.Count, hdr.Dim, info.Size())
	}

	data := make([]float32, values)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.New("corrupt index: truncated vectors")
		}
		return nil, fmt.Errorf("failed to read index vectors: %w", err)
	}

	return &FlatIndex{dim: int(hdr.Dim), gen: uuid.UUID(hdr.Generation), data: data}, nil
}

var _ Index = (*FlatIndex)(nil)
