package storage

import (
	"github.com/ngaut/log"
)

type orphan struct {
	ref     VersionRef
	abortTS uint64
}

// GCStats summarizes one GC pass.
type GCStats struct {
	Versions int
	Chains   int
}

// GC reclaims versions no transaction with a start timestamp at or above safePoint can see:
// versions older than the newest one committed before safePoint, whole chains whose head was
// deleted before safePoint or never committed, and rolled back heads detached before safePoint.
// The caller must pass the oldest start timestamp of all active transactions.
func (s *Store) GC(safePoint uint64) GCStats {
	var stats GCStats

	s.mu.RLock()
	rows := make([]RowID, 0, len(s.chains))
	chains := make([]*chain, 0, len(s.chains))
	for row, c := range s.chains {
		rows = append(rows, row)
		chains = append(chains, c)
	}
	s.mu.RUnlock()

	for i, c := range chains {
		freed, dropChain, staleKeys := s.gcChain(rows[i], c, safePoint)
		stats.Versions += freed
		if dropChain {
			stats.Chains++
		}
		if len(staleKeys) > 0 || dropChain {
			t := c.table
			t.mu.Lock()
			for _, key := range staleKeys {
				t.index.Delete(&indexItem{key: key, row: rows[i]})
			}
			if dropChain {
				t.rows = removeRow(t.rows, rows[i])
			}
			t.mu.Unlock()
		}
	}

	s.mu.Lock()
	kept := s.orphans[:0]
	for _, o := range s.orphans {
		if o.abortTS < safePoint {
			if s.versions[o.ref] != nil {
				s.versions[o.ref] = nil
				s.liveRefs--
				stats.Versions++
			}
			continue
		}
		kept = append(kept, o)
	}
	s.orphans = kept
	s.mu.Unlock()

	if stats.Versions > 0 {
		log.Infof("storage: gc at safe point %d freed %d versions and %d chains", safePoint, stats.Versions, stats.Chains)
	}
	return stats
}

// gcChain frees the unreachable tail of one chain, or the whole chain when no live version is
// left. It returns the index keys no remaining version holds.
func (s *Store) gcChain(row RowID, c *chain, safePoint uint64) (freed int, dropChain bool, staleKeys [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.mu.RLock()
	var (
		floor    VersionRef
		keptKeys = make(map[string]struct{})
		refs     []VersionRef
	)
	for ref := c.head; ref != NilRef; {
		v := s.versions[ref]
		if v == nil {
			break
		}
		refs = append(refs, ref)
		if floor == NilRef {
			keptKeys[string(v.key)] = struct{}{}
			if v.createdAt != 0 && v.createdAt < safePoint {
				floor = ref
			}
		}
		ref = v.prev
	}
	head := s.versions[c.head]
	s.mu.RUnlock()
	if head == nil {
		return 0, false, nil
	}

	var free []VersionRef
	switch {
	case head.dead && head.prev == NilRef:
		// A rolled back insert.
		dropChain = true
		free = refs
	case head.deletedAt != 0 && head.deletedAt < safePoint:
		dropChain = true
		free = refs
	case floor != NilRef:
		for i, ref := range refs {
			if ref == floor {
				free = refs[i+1:]
				break
			}
		}
	}
	if len(free) == 0 {
		return 0, false, nil
	}

	seen := make(map[string]struct{})
	s.mu.Lock()
	for _, ref := range free {
		v := s.versions[ref]
		if v == nil {
			continue
		}
		if v.key != nil {
			_, kept := keptKeys[string(v.key)]
			_, dup := seen[string(v.key)]
			if (dropChain || !kept) && !dup {
				staleKeys = append(staleKeys, v.key)
				seen[string(v.key)] = struct{}{}
			}
		}
		s.versions[ref] = nil
		s.liveRefs--
		freed++
	}
	if dropChain {
		delete(s.chains, row)
	} else if fv := s.versions[floor]; fv != nil {
		fv.prev = NilRef
	}
	s.mu.Unlock()
	return freed, dropChain, staleKeys
}

func removeRow(rows []RowID, row RowID) []RowID {
	for i, r := range rows {
		if r == row {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}
