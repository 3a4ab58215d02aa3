package scraper

// dedupIndex tracks review IDs admitted during one Collect call.
type dedupIndex struct {
	seen map[string]struct{}
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{seen: make(map[string]struct{})}
}

// Admit records id and reports whether it was not seen before.
func (d *dedupIndex) Admit(id string) bool {
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

func (d *dedupIndex) Len() int {
	return len(d.seen)
}
