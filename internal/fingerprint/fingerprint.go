// Package fingerprint suppresses redundant persistence of proposal snapshots.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"bidline/api/internal/proposal"
)

// Of returns the canonical fingerprint of a snapshot. Struct fields encode in
// declaration order and map keys sorted, so equal states hash equally.
// LastSaved is not part of the tracked state.
func Of(snapshot proposal.Snapshot) (string, error) {
	payload, err := json.Marshal(snapshot.Proposal)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Detector remembers the last persisted fingerprint per proposal id.
type Detector struct {
	mu   sync.Mutex
	last map[string]string
}

func NewDetector() *Detector {
	return &Detector{last: make(map[string]string)}
}

// Check fingerprints snapshot and reports whether it differs from the last
// fingerprint recorded for id. It does not record anything.
func (d *Detector) Check(id string, snapshot proposal.Snapshot) (string, bool, error) {
	fp, err := Of(snapshot)
	if err != nil {
		return "", false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fp, d.last[id] != fp, nil
}

func (d *Detector) Record(id, fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last[id] = fp
}

// Reset forgets id so the next save for it is never suppressed.
func (d *Detector) Reset(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, id)
}
