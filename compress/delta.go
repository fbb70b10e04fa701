// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// deletedPrefix marks a removed key in an encoded delta.
const deletedPrefix = "__deleted__"

// ErrNoBaseline is returned when a delta frame arrives for an entity with no
// known baseline state.
var ErrNoBaseline = errors.New("no baseline state for delta")

// deltaEncode produces either a field-level diff against the entity's
// baseline or a full state. Full state is sent when there is no baseline,
// when the full-state interval elapsed, or when the diff is not meaningfully
// smaller than the full payload. The caller holds no lock.
func (c *Compressor) deltaEncode(entityID string, raw []byte) ([]byte, bool, error) {
	state, err := unmarshalState(raw)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	base, ok := c.baselines[entityID]
	if !ok || now.Sub(base.lastFullAt) > c.interval {
		c.baselines[entityID] = &baseline{state: state, lastFullAt: now}
		return raw, true, nil
	}

	delta := diffStates(base.state, state)
	encoded, err := json.Marshal(delta)
	if err != nil {
		return nil, false, err
	}

	// A delta close to the full size is not worth the statefulness.
	if len(encoded) >= int(float64(len(raw))*EffectiveRatio) {
		c.baselines[entityID] = &baseline{state: state, lastFullAt: now}
		return raw, true, nil
	}

	base.state = state
	return encoded, false, nil
}

// pinBaseline records raw as the current full state for an entity after a
// non-delta frame carrying the full state was chosen for the wire.
func (c *Compressor) pinBaseline(entityID string, raw []byte) {
	if entityID == "" {
		return
	}
	state, err := unmarshalState(raw)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baselines[entityID] = &baseline{state: state, lastFullAt: c.now()}
}

func (c *Compressor) setBaseline(entityID string, state map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baselines[entityID] = &baseline{state: state, lastFullAt: c.now()}
}

func (c *Compressor) deltaDecode(entityID string, body []byte, full bool, meta Meta) (map[string]any, Meta, error) {
	state, err := unmarshalState(body)
	if err != nil {
		return nil, meta, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if full {
		c.baselines[entityID] = &baseline{state: state, lastFullAt: c.now()}
		return state, meta, nil
	}

	base, ok := c.baselines[entityID]
	if !ok {
		return nil, meta, fmt.Errorf("entity %s: %w", entityID, ErrNoBaseline)
	}
	merged := applyDelta(base.state, state)
	base.state = merged
	return merged, meta, nil
}

// diffStates returns the keys of next that changed relative to prev,
// recursing into nested maps, plus deletion sentinels for removed keys.
func diffStates(prev, next map[string]any) map[string]any {
	delta := make(map[string]any)

	for key, nv := range next {
		pv, existed := prev[key]
		if !existed {
			delta[key] = nv
			continue
		}
		if pm, ok := pv.(map[string]any); ok {
			if nm, ok := nv.(map[string]any); ok {
				if nested := diffStates(pm, nm); len(nested) > 0 {
					delta[key] = nested
				}
				continue
			}
		}
		if !reflect.DeepEqual(pv, nv) {
			delta[key] = nv
		}
	}

	for key := range prev {
		if _, kept := next[key]; !kept {
			delta[deletedPrefix+key] = true
		}
	}

	return delta
}

// applyDelta merges a delta into a base state, returning a new map.
func applyDelta(base, delta map[string]any) map[string]any {
	merged := make(map[string]any, len(base))
	for k, v := range base {
		merged[k] = v
	}

	for key, v := range delta {
		if strings.HasPrefix(key, deletedPrefix) {
			delete(merged, strings.TrimPrefix(key, deletedPrefix))
			continue
		}
		if dm, ok := v.(map[string]any); ok {
			if bm, ok := merged[key].(map[string]any); ok {
				merged[key] = applyDelta(bm, dm)
				continue
			}
		}
		merged[key] = v
	}

	return merged
}
