package snapshot

import (
	"sort"

	"github.com/antchfx/xmlquery"

	"github.com/devicelab-dev/uibridge/pkg/core"
)

// TypeInventory memoizes the node-type tags observed in a snapshot so
// expression variants can be retried against every known element type
// without rescanning the tree on each attempt. It is an explicit,
// per-device cache: populated lazily from the first snapshot that needs
// it, refreshed only when empty, and cleared whenever the platform of
// the incoming snapshot no longer matches the one it was built from.
//
// The inventory is not safe for concurrent use; callers driving
// multiple devices keep one inventory per device.
type TypeInventory struct {
	platform core.Platform
	tags     []string
}

// Tags returns the memoized type tags, populating from the given
// snapshot if the memo is empty or was built for a different platform.
func (inv *TypeInventory) Tags(s *Snapshot) []string {
	if s == nil {
		return inv.tags
	}
	if inv.platform != s.Platform() {
		inv.Reset()
	}
	if len(inv.tags) == 0 {
		inv.populate(s)
	}
	return inv.tags
}

// Reset clears the memo so the next Tags call repopulates it.
func (inv *TypeInventory) Reset() {
	inv.platform = core.PlatformUnknown
	inv.tags = nil
}

func (inv *TypeInventory) populate(s *Snapshot) {
	seen := make(map[string]struct{})
	for _, n := range s.Elements() {
		if n.Type != xmlquery.ElementNode || n.Data == "" {
			continue
		}
		seen[n.Data] = struct{}{}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	// Deterministic variant ordering across runs.
	sort.Strings(tags)

	inv.platform = s.Platform()
	inv.tags = tags
}
