// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/lisa/lib/atomicfile"
	"github.com/bureau-foundation/lisa/lib/codec"
	"github.com/bureau-foundation/lisa/lib/digest"
	"github.com/bureau-foundation/lisa/lib/plan"
)

// SnapshotVersion is the schema version written by this binary.
const SnapshotVersion = 1

// SnapshotDir is the snapshot root relative to the repository.
const SnapshotDir = ".lisa/state"

var (
	// ErrNoSnapshot is returned when no snapshot exists.
	ErrNoSnapshot = errors.New("progress: no snapshot")

	// ErrCorruptSnapshot is returned when a snapshot fails its digest
	// check or cannot be decoded.
	ErrCorruptSnapshot = errors.New("progress: corrupt snapshot")

	// ErrSnapshotVersion is returned for a schema this binary does not
	// know.
	ErrSnapshotVersion = errors.New("progress: unsupported snapshot version")
)

// Snapshot is the local checkpoint of a branch's progress.
type Snapshot struct {
	Unit        string           `cbor:"unit"`
	Branch      string           `cbor:"branch"`
	CommentID   string           `cbor:"comment_id,omitempty"`
	Iteration   int              `cbor:"iteration"`
	CurrentStep int              `cbor:"current_step,omitempty"`
	Steps       plan.Plan        `cbor:"steps"`
	Decisions   []plan.Decision  `cbor:"decisions,omitempty"`
	Exploration plan.Exploration `cbor:"exploration"`
	Log         []string         `cbor:"log,omitempty"`
	ReviewGuide string           `cbor:"review_guide,omitempty"`
	SavedAt     time.Time        `cbor:"saved_at"`
}

// SnapshotOf captures document as a snapshot for unit.
func SnapshotOf(unit, commentID string, document Document, savedAt time.Time) Snapshot {
	return Snapshot{
		Unit:        unit,
		Branch:      document.Branch,
		CommentID:   commentID,
		Iteration:   document.Iteration,
		CurrentStep: document.CurrentStep,
		Steps:       document.Steps.Clone(),
		Decisions:   append([]plan.Decision(nil), document.Decisions...),
		Exploration: document.Exploration,
		Log:         append([]string(nil), document.Log...),
		ReviewGuide: document.ReviewGuide,
		SavedAt:     savedAt,
	}
}

// Document returns the snapshot as a progress document.
func (snapshot Snapshot) Document() Document {
	return Document{
		Branch:      snapshot.Branch,
		Iteration:   snapshot.Iteration,
		CurrentStep: snapshot.CurrentStep,
		Steps:       snapshot.Steps.Clone(),
		Decisions:   append([]plan.Decision(nil), snapshot.Decisions...),
		Exploration: snapshot.Exploration,
		Log:         append([]string(nil), snapshot.Log...),
		LastRun:     snapshot.SavedAt,
		ReviewGuide: snapshot.ReviewGuide,
	}
}

// envelope wraps the encoded snapshot with its schema version and a
// digest of the payload bytes.
type envelope struct {
	Version int              `cbor:"version"`
	Digest  digest.Hash      `cbor:"digest"`
	Payload codec.RawMessage `cbor:"payload"`
}

var (
	snapshotEncoder *zstd.Encoder
	snapshotDecoder *zstd.Decoder
)

func init() {
	var err error
	snapshotEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("progress: zstd encoder initialization failed: " + err.Error())
	}
	snapshotDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("progress: zstd decoder initialization failed: " + err.Error())
	}
}

// SnapshotStore keeps snapshots at <root>/<unit>/<branch>.snap.
type SnapshotStore struct {
	root   string
	logger *slog.Logger
}

// NewSnapshotStore creates a store rooted at root, usually
// <repository>/.lisa/state.
func NewSnapshotStore(root string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{root: root, logger: logger}
}

// Path returns the snapshot file for unit and branch. Slashes in the
// branch name are flattened so every snapshot of a unit shares one
// directory.
func (store *SnapshotStore) Path(unit, branch string) string {
	return filepath.Join(store.root, unit, strings.ReplaceAll(branch, "/", "__")+".snap")
}

// Save writes snapshot atomically.
func (store *SnapshotStore) Save(snapshot Snapshot) error {
	data, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	path := store.Path(snapshot.Unit, snapshot.Branch)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("progress: creating snapshot directory: %w", err)
	}
	if err := atomicfile.Write(path, data, 0644); err != nil {
		return fmt.Errorf("progress: writing snapshot: %w", err)
	}
	store.logger.Debug("saved snapshot", "path", path, "iteration", snapshot.Iteration, "bytes", len(data))
	return nil
}

// Load reads the snapshot for unit and branch.
func (store *SnapshotStore) Load(unit, branch string) (Snapshot, error) {
	data, err := os.ReadFile(store.Path(unit, branch))
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("progress: reading snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// EncodeSnapshot produces the compressed on-disk form.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	payload, err := codec.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("progress: encoding snapshot: %w", err)
	}
	wrapped, err := codec.Marshal(envelope{
		Version: SnapshotVersion,
		Digest:  digest.Snapshot(payload),
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("progress: encoding snapshot envelope: %w", err)
	}
	return snapshotEncoder.EncodeAll(wrapped, nil), nil
}

// DecodeSnapshot reverses EncodeSnapshot, checking the version and the
// digest before decoding the payload.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	wrapped, err := snapshotDecoder.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: decompressing: %v", ErrCorruptSnapshot, err)
	}
	var outer envelope
	if err := codec.Unmarshal(wrapped, &outer); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decoding envelope: %v", ErrCorruptSnapshot, err)
	}
	if outer.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, outer.Version)
	}
	if digest.Snapshot(outer.Payload) != outer.Digest {
		return Snapshot{}, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	var snapshot Snapshot
	if err := codec.Unmarshal(outer.Payload, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decoding payload: %v", ErrCorruptSnapshot, err)
	}
	return snapshot, nil
}
