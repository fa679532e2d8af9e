package dom

import "sort"

// listenerEntry is one registration. seq increases monotonically per target
// and orders entries by insertion.
type listenerEntry struct {
	handle *Handle
	seq    uint64
}

// registry maps event kinds to ordered listener entries. A kind key stays in
// the map after its last entry is removed; only clear deletes keys.
type registry struct {
	entries map[string][]listenerEntry
	// interested records every kind ever registered, surviving clear.
	interested map[string]struct{}
	seq        uint64
}

func newRegistry() registry {
	return registry{
		entries:    make(map[string][]listenerEntry),
		interested: make(map[string]struct{}),
	}
}

// add appends h under kind and reports whether kind was never seen before.
func (r *registry) add(kind string, h *Handle) bool {
	r.seq++
	h.Retain()
	r.entries[kind] = append(r.entries[kind], listenerEntry{handle: h, seq: r.seq})
	_, seen := r.interested[kind]
	r.interested[kind] = struct{}{}
	return !seen
}

// remove drops every entry for kind whose handle is h and returns how many
// were removed.
func (r *registry) remove(kind string, h *Handle) int {
	list, ok := r.entries[kind]
	if !ok {
		return 0
	}
	kept := list[:0]
	removed := 0
	for _, e := range list {
		if e.handle == h {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = listenerEntry{}
	}
	r.entries[kind] = kept
	for range removed {
		h.Release()
	}
	return removed
}

// replace releases every entry for kind and installs h as the only one.
func (r *registry) replace(kind string, h *Handle) {
	old := r.entries[kind]
	r.seq++
	h.Retain()
	r.entries[kind] = []listenerEntry{{handle: h, seq: r.seq}}
	r.interested[kind] = struct{}{}
	for _, e := range old {
		e.handle.Release()
	}
}

// clear releases every entry of every kind.
func (r *registry) clear() {
	old := r.entries
	r.entries = make(map[string][]listenerEntry)
	for _, list := range old {
		for _, e := range list {
			e.handle.Release()
		}
	}
}

func (r *registry) has(kind string) bool {
	_, ok := r.entries[kind]
	return ok
}

func (r *registry) first(kind string) *Handle {
	if list := r.entries[kind]; len(list) > 0 {
		return list[0].handle
	}
	return nil
}

// next returns the first entry for kind registered after seq.
func (r *registry) next(kind string, after uint64) (listenerEntry, bool) {
	list := r.entries[kind]
	i := sort.Search(len(list), func(i int) bool { return list[i].seq > after })
	if i == len(list) {
		return listenerEntry{}, false
	}
	return list[i], true
}

func (r *registry) handles(kind string) []*Handle {
	list := r.entries[kind]
	out := make([]*Handle, len(list))
	for i, e := range list {
		out[i] = e.handle
	}
	return out
}

func (r *registry) kinds() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
