package vecindex

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible layout.
const snapshotVersion = 1

// ErrSnapshotVersion is returned when a snapshot file has an unknown version.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// snapshot is the on-disk CBOR layout of the index.
type snapshot struct {
	Version  int                             `cbor:"version"`
	Dims     int                             `cbor:"dims"`
	Contests map[string]map[string][]float32 `cbor:"contests"`
}

// Save writes the index contents to path as CBOR. The file is written to a
// temp name and renamed so a crash mid-write never leaves a torn snapshot.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	snap := snapshot{
		Version:  snapshotVersion,
		Dims:     x.dims,
		Contests: make(map[string]map[string][]float32, len(x.contests)),
	}
	for contestID, entries := range x.contests {
		vecs := make(map[string][]float32, len(entries))
		for id, v := range entries {
			vecs[id] = append([]float32(nil), v...)
		}
		snap.Contests[contestID] = vecs
	}
	x.mu.RUnlock()

	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	return nil
}

// Load replaces the index contents with a previously saved snapshot.
// Vectors were normalized before saving, so they are restored as-is.
func (x *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}
	if snap.Dims != x.dims {
		return ErrDimensionMismatch
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.contests = make(map[string]map[string][]float32, len(snap.Contests))
	x.owner = make(map[string]string)
	for contestID, entries := range snap.Contests {
		vecs := make(map[string][]float32, len(entries))
		for id, v := range entries {
			vecs[id] = v
			x.owner[id] = contestID
		}
		x.contests[contestID] = vecs
	}
	return nil
}
