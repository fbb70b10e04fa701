// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package compress turns message payloads into wire bytes, choosing per
// message kind between raw encoding, zlib, delta-against-last-state and a
// hybrid of the two. Output frames are self-describing so the receiver
// needs no side channel to decode them.
package compress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/absmach/gamecast/message"
)

// Algorithm identifies how a frame's payload is encoded.
type Algorithm uint8

const (
	None Algorithm = iota
	Zlib
	Delta
	Hybrid // strategy only; frames record the algorithm actually used
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case Delta:
		return "delta"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Frame header: algorithm (1) + flags (1) + entity id length (1).
const (
	headerSize    = 3
	flagFullState = 1 << 0
)

// Compression tunables.
const (
	// MinCompressSize is the payload size below which compression is skipped.
	MinCompressSize = 100
	// EffectiveRatio is the fraction of the original size a compressed
	// payload must stay under to be worth sending.
	EffectiveRatio = 0.8
	// DefaultFullStateInterval bounds delta staleness: at least one full
	// state per entity within this interval.
	DefaultFullStateInterval = 10 * time.Second
)

var (
	ErrEntityTooLong = errors.New("entity id exceeds 255 bytes")
	ErrShortFrame    = errors.New("frame shorter than header")
)

// Meta describes one compression outcome. It is returned alongside the
// frame for statistics and tests; the frame itself carries everything the
// receiver needs.
type Meta struct {
	Algorithm    Algorithm
	FullState    bool
	EntityID     string
	OriginalSize int
	FrameSize    int
}

// Compressor selects and applies a strategy per message kind. Its per-entity
// delta baselines are shared process-wide and internally synchronized.
type Compressor struct {
	mu         sync.Mutex
	strategies map[message.Kind]Algorithm
	baselines  map[string]*baseline
	interval   time.Duration
	now        func() time.Time

	rawBytes        atomic.Uint64
	compressedBytes atomic.Uint64
	fallbacks       atomic.Uint64
}

type baseline struct {
	state      map[string]any
	lastFullAt time.Time
}

// New creates a compressor with the default per-kind strategy table. A
// non-positive fullStateInterval falls back to DefaultFullStateInterval.
func New(fullStateInterval time.Duration) *Compressor {
	if fullStateInterval <= 0 {
		fullStateInterval = DefaultFullStateInterval
	}
	return &Compressor{
		strategies: map[message.Kind]Algorithm{
			message.KindPlayerPosition:  Delta,
			message.KindPlayerUpdate:    Delta,
			message.KindInventoryUpdate: Delta,
			message.KindEntityUpdate:    Hybrid,
			message.KindChunkData:       Zlib,
			message.KindChat:            None,
			message.KindPrivateMessage:  None,
			message.KindBlockUpdate:     None,
		},
		baselines: make(map[string]*baseline),
		interval:  fullStateInterval,
		now:       time.Now,
	}
}

// SetStrategy overrides the strategy for one kind.
func (c *Compressor) SetStrategy(kind message.Kind, alg Algorithm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategies[kind] = alg
}

// Compress encodes a payload into a self-describing frame. For delta-capable
// strategies entityID keys the baseline; an empty entityID degrades delta to
// raw and hybrid to zlib. Compression errors fall back to the raw frame.
func (c *Compressor) Compress(kind message.Kind, payload any, entityID string) ([]byte, Meta, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	if len(entityID) > 255 {
		return nil, Meta{}, ErrEntityTooLong
	}

	c.mu.Lock()
	strategy, ok := c.strategies[kind]
	c.mu.Unlock()
	if !ok || len(raw) < MinCompressSize {
		// Small delta-strategy payloads still ship as full state, so the
		// baseline must follow what the receiver will reconstruct.
		if ok && entityID != "" && (strategy == Delta || strategy == Hybrid) {
			c.pinBaseline(entityID, raw)
		}
		strategy = None
	}

	body, alg, full := c.encode(strategy, raw, entityID)

	// Effectiveness guard: compression must beat the threshold or the raw
	// payload is sent. A discarded delta means the receiver never sees it,
	// so the baseline is repinned to the full state just sent.
	if alg != None && len(body) >= int(float64(len(raw))*EffectiveRatio) {
		c.fallbacks.Add(1)
		if alg == Delta {
			c.pinBaseline(entityID, raw)
		}
		body, alg, full = raw, None, true
	}

	frame := encodeFrame(alg, full, entityID, body)
	meta := Meta{
		Algorithm:    alg,
		FullState:    full,
		EntityID:     entityID,
		OriginalSize: len(raw),
		FrameSize:    len(frame),
	}
	c.rawBytes.Add(uint64(len(raw)))
	c.compressedBytes.Add(uint64(len(frame)))
	return frame, meta, nil
}

func (c *Compressor) encode(strategy Algorithm, raw []byte, entityID string) (body []byte, alg Algorithm, full bool) {
	switch strategy {
	case Zlib:
		z, err := deflate(raw)
		if err != nil {
			return raw, None, true
		}
		return z, Zlib, true

	case Delta:
		if entityID == "" {
			return raw, None, true
		}
		body, full, err := c.deltaEncode(entityID, raw)
		if err != nil {
			return raw, None, true
		}
		return body, Delta, full

	case Hybrid:
		z, zerr := deflate(raw)
		if entityID == "" {
			if zerr != nil {
				return raw, None, true
			}
			return z, Zlib, true
		}
		d, dfull, derr := c.deltaEncode(entityID, raw)
		switch {
		case derr != nil && zerr != nil:
			return raw, None, true
		case derr != nil:
			return z, Zlib, true
		case zerr != nil:
			return d, Delta, dfull
		case len(d) < len(z):
			return d, Delta, dfull
		default:
			// Zlib won: the receiver decodes a full state either way, but
			// the delta baseline advanced, so repin it to what was sent.
			c.pinBaseline(entityID, raw)
			return z, Zlib, true
		}

	default:
		return raw, None, true
	}
}

// Decompress decodes a frame produced by Compress. For delta frames the
// state is reconstructed against the receiver-side baseline for the frame's
// entity; a delta without a baseline is an error (the next full state
// resynchronizes within one interval).
func (c *Compressor) Decompress(frame []byte) (map[string]any, Meta, error) {
	alg, full, entityID, body, err := decodeFrame(frame)
	if err != nil {
		return nil, Meta{}, err
	}
	meta := Meta{Algorithm: alg, FullState: full, EntityID: entityID, FrameSize: len(frame)}

	switch alg {
	case None:
		state, err := unmarshalState(body)
		if err != nil {
			return nil, meta, err
		}
		if entityID != "" {
			c.setBaseline(entityID, state)
		}
		return state, meta, nil

	case Zlib:
		raw, err := inflate(body)
		if err != nil {
			return nil, meta, fmt.Errorf("inflate frame: %w", err)
		}
		state, err := unmarshalState(raw)
		if err != nil {
			return nil, meta, err
		}
		if entityID != "" {
			c.setBaseline(entityID, state)
		}
		return state, meta, nil

	case Delta:
		return c.deltaDecode(entityID, body, full, meta)

	default:
		return nil, meta, fmt.Errorf("unknown frame algorithm %d", alg)
	}
}

// RawFrame wraps already-serialized bytes in an uncompressed frame, for
// senders that must stay on the frame wire format when compression is
// bypassed or failed.
func RawFrame(payload []byte) []byte {
	return encodeFrame(None, true, "", payload)
}

// ClearHistory drops delta baselines, for one entity or all of them.
func (c *Compressor) ClearHistory(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entityID == "" {
		c.baselines = make(map[string]*baseline)
		return
	}
	delete(c.baselines, entityID)
}

// Statistics reports cumulative byte counts and the overall ratio.
func (c *Compressor) Statistics() map[string]any {
	raw := c.rawBytes.Load()
	comp := c.compressedBytes.Load()
	ratio := 1.0
	if raw > 0 {
		ratio = float64(comp) / float64(raw)
	}
	return map[string]any{
		"raw_bytes":        raw,
		"compressed_bytes": comp,
		"ratio":            ratio,
		"fallbacks":        c.fallbacks.Load(),
	}
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func unmarshalState(data []byte) (map[string]any, error) {
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

func encodeFrame(alg Algorithm, full bool, entityID string, body []byte) []byte {
	frame := make([]byte, 0, headerSize+len(entityID)+len(body))
	var flags byte
	if full {
		flags |= flagFullState
	}
	frame = append(frame, byte(alg), flags, byte(len(entityID)))
	frame = append(frame, entityID...)
	return append(frame, body...)
}

func decodeFrame(frame []byte) (alg Algorithm, full bool, entityID string, body []byte, err error) {
	if len(frame) < headerSize {
		return 0, false, "", nil, ErrShortFrame
	}
	alg = Algorithm(frame[0])
	full = frame[1]&flagFullState != 0
	idLen := int(frame[2])
	if len(frame) < headerSize+idLen {
		return 0, false, "", nil, ErrShortFrame
	}
	entityID = string(frame[headerSize : headerSize+idLen])
	body = frame[headerSize+idLen:]
	return alg, full, entityID, body, nil
}
