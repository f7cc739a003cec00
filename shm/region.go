// Package shm owns a file-backed shared memory mapping and hands out bounded views of it.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

var (
	ErrRegionNotFound = errors.New("shm: region not found")
	ErrRegionTooSmall = errors.New("shm: region too small")
	ErrOutOfBounds    = errors.New("shm: out of bounds")
	ErrHandleClosed   = errors.New("shm: handle closed")
)

// Region is a read-write MAP_SHARED mapping of a backing file, usually under /dev/shm.
// Writes by any process attached to the same file are visible to all others.
type Region struct {
	mu     sync.RWMutex // held for reading by every access, for writing by Close
	path   string
	file   *os.File
	mmap   mmap.MMap // the whole backing file
	closed bool
}

// Open attaches to an existing backing file, which must be at least minSize bytes.
func Open(path string, minSize int) (*Region, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, path)
		}
		return nil, fmt.Errorf("failed to open region: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat region: %w", err)
	}
	if stat.Size() < int64(minSize) || stat.Size() == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d", ErrRegionTooSmall, path, stat.Size(), minSize)
	}

	return mapFile(path, file)
}

// Create creates the backing file, or resizes an existing one, to size bytes and maps it.
// Only the writer side calls this.
func Create(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrRegionTooSmall, size)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create region: %w", err)
	}

	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate region: %w", err)
	}

	return mapFile(path, file)
}

func mapFile(path string, file *os.File) (*Region, error) {
	m, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap region: %w", err)
	}

	if err := m.Lock(); err != nil {
		// proceed without locking;
		// caller may tune ulimit -l / CAP_IPC_LOCK
	}

	return &Region{
		path: path,
		file: file,
		mmap: m,
	}, nil
}

func (r *Region) Path() string {
	return r.path
}

// Size returns the mapped length, or 0 once closed.
func (r *Region) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0
	}
	return len(r.mmap)
}

// ReadSlice returns a copy of length bytes starting at offset.
func (r *Region) ReadSlice(offset, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrOutOfBounds, length)
	}
	out := make([]byte, length)
	if err := r.ReadInto(out, offset); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadInto copies len(dst) bytes starting at offset into dst.
func (r *Region) ReadInto(dst []byte, offset int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, r.mmap[offset:offset+len(dst)])
	return nil
}

// WriteAt copies src into the region at offset.
func (r *Region) WriteAt(src []byte, offset int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(offset, len(src)); err != nil {
		return err
	}
	copy(r.mmap[offset:], src)
	return nil
}

// LoadUint64 atomically loads the native-endian word at offset, which must be 8-byte aligned.
func (r *Region) LoadUint64(offset int) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, err := r.word(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64(p), nil
}

// StoreUint64 atomically stores v at offset, which must be 8-byte aligned.
func (r *Region) StoreUint64(offset int, v uint64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, err := r.word(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint64(p, v)
	return nil
}

// LoadWords copies len(dst) bytes starting at offset into dst using one atomic
// 8-byte load per word. offset and len(dst) must be multiples of 8.
func (r *Region) LoadWords(dst []byte, offset int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.words(offset, len(dst)); err != nil {
		return err
	}
	for i := 0; i < len(dst); i += 8 {
		v := atomic.LoadUint64((*uint64)(unsafe.Pointer(&r.mmap[offset+i])))
		binary.NativeEndian.PutUint64(dst[i:], v)
	}
	return nil
}

// SeqWrite copies src to offset between two bumps of the sequence word at
// seqOffset: odd before the first payload word is stored, even after the last.
// Every store is atomic and the handle cannot close midway, so a returned error
// means nothing was written. The sequence word must lie outside the payload.
func (r *Region) SeqWrite(seqOffset int, src []byte, offset int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seqp, err := r.word(seqOffset)
	if err != nil {
		return err
	}
	if err := r.words(offset, len(src)); err != nil {
		return err
	}

	seq := atomic.LoadUint64(seqp) | 1
	atomic.StoreUint64(seqp, seq)
	for i := 0; i < len(src); i += 8 {
		v := binary.NativeEndian.Uint64(src[i:])
		atomic.StoreUint64((*uint64)(unsafe.Pointer(&r.mmap[offset+i])), v)
	}
	atomic.StoreUint64(seqp, seq+1)
	return nil
}

// Flush syncs the mapping to the backing file.
func (r *Region) Flush() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrHandleClosed
	}
	return r.mmap.Flush()
}

// Close unmaps the region and releases the descriptor. Any later call,
// including another Close, returns ErrHandleClosed.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrHandleClosed
	}
	r.closed = true

	_ = r.mmap.Unlock()
	if err := r.mmap.Unmap(); err != nil {
		_ = r.file.Close()
		return fmt.Errorf("failed to unmap: %w", err)
	}
	r.mmap = nil
	return r.file.Close()
}

// check must be called with mu held.
func (r *Region) check(offset, length int) error {
	if r.closed {
		return ErrHandleClosed
	}
	size := len(r.mmap)
	if offset < 0 || length < 0 || offset > size || length > size-offset {
		return fmt.Errorf("%w: [%d, %d+%d) outside %d bytes", ErrOutOfBounds, offset, offset, length, size)
	}
	return nil
}

func (r *Region) words(offset, length int) error {
	if err := r.check(offset, length); err != nil {
		return err
	}
	if offset%8 != 0 || length%8 != 0 {
		return fmt.Errorf("%w: [%d, %d+%d) not 8-byte aligned", ErrOutOfBounds, offset, offset, length)
	}
	return nil
}

func (r *Region) word(offset int) (*uint64, error) {
	if err := r.check(offset, 8); err != nil {
		return nil, err
	}
	if offset%8 != 0 {
		return nil, fmt.Errorf("%w: offset %d not 8-byte aligned", ErrOutOfBounds, offset)
	}
	return (*uint64)(unsafe.Pointer(&r.mmap[offset])), nil
}
