// Package recorder captures every snapshot of an episode to disk: a
// zstd-compressed JSONL stream of the snapshots themselves plus a SQLite
// index of the recorded frames for cheap range queries.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"roadsim.ai/internal/client"
)

// JSONLZstdWriter appends one JSON value per line to a zstd-compressed file.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) (*JSONLZstdWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLZstdWriter{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return fmt.Errorf("writer closed")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	_ = w.w.Flush()
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	w.enc = nil
	w.w = nil
	return err
}

// FrameEntry is one recorded snapshot line.
type FrameEntry struct {
	EpisodeID      string  `json:"episode_id"`
	Frame          uint64  `json:"frame"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	DeltaSeconds   float64 `json:"delta_seconds"`
	Actors         any     `json:"actors"`
}

// Recorder ties the stream writer and the frame index together. Feed it
// snapshots via Record, typically from an OnTick registration.
type Recorder struct {
	w     *JSONLZstdWriter
	index *Index
	path  string
}

// Open creates (or appends to) a recording under dir, one file and one index
// per episode.
func Open(dir, episodeID string) (*Recorder, error) {
	path := filepath.Join(dir, episodeID+".jsonl.zst")
	w, err := NewJSONLZstdWriter(path)
	if err != nil {
		return nil, err
	}
	idx, err := OpenIndex(filepath.Join(dir, episodeID+".db"))
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Recorder{w: w, index: idx, path: path}, nil
}

// Path returns the snapshot stream file.
func (r *Recorder) Path() string { return r.path }

// Index returns the frame index for queries.
func (r *Recorder) Index() *Index { return r.index }

// Record writes one snapshot. Safe to call from a tick callback; the index
// insert is asynchronous and never stalls delivery.
func (r *Recorder) Record(s client.WorldSnapshot) error {
	entry := FrameEntry{
		EpisodeID:      s.EpisodeID,
		Frame:          s.Frame,
		ElapsedSeconds: s.ElapsedSeconds,
		DeltaSeconds:   s.DeltaSeconds,
		Actors:         s.Actors,
	}
	if err := r.w.Write(entry); err != nil {
		return err
	}
	r.index.InsertFrame(FrameRow{
		EpisodeID: s.EpisodeID,
		Frame:     s.Frame,
		Elapsed:   s.ElapsedSeconds,
		Actors:    len(s.Actors),
	})
	return nil
}

// Attach registers the recorder on the world's tick stream and returns the
// registration id for RemoveOnTick.
func (r *Recorder) Attach(w *client.World) (uint64, error) {
	return w.OnTick(func(s client.WorldSnapshot) {
		_ = r.Record(s)
	})
}

func (r *Recorder) Close() error {
	err := r.w.Close()
	if cerr := r.index.Close(); err == nil {
		err = cerr
	}
	return err
}
