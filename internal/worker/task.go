package worker

// WorkItem is one resolved unit of work
type WorkItem struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Metadata    string         `json:"metadata"`
	Kwargs      map[string]any `json:"kwargs,omitempty"`
}

// WorkSet holds resolved items as four order-aligned slices.
// Use Append to grow it so the slices never drift apart.
type WorkSet struct {
	Sources      []string
	Destinations []string
	Metadata     []string
	Kwargs       []map[string]any
}

// Len returns the number of items
func (s WorkSet) Len() int {
	return len(s.Sources)
}

// Empty reports whether the set has no items
func (s WorkSet) Empty() bool {
	return s.Len() == 0
}

// Append adds one item to all four slices
func (s *WorkSet) Append(item WorkItem) {
	s.Sources = append(s.Sources, item.Source)
	s.Destinations = append(s.Destinations, item.Destination)
	s.Metadata = append(s.Metadata, item.Metadata)
	s.Kwargs = append(s.Kwargs, item.Kwargs)
}

// At returns the i-th item
func (s WorkSet) At(i int) WorkItem {
	return WorkItem{
		Source:      s.Sources[i],
		Destination: s.Destinations[i],
		Metadata:    s.Metadata[i],
		Kwargs:      s.Kwargs[i],
	}
}

// Partition splits the set into consecutive chunks of at most size items,
// preserving alignment in every chunk. size < 1 is treated as 1.
func (s WorkSet) Partition(size int) []WorkSet {
	if size < 1 {
		size = 1
	}

	chunks := make([]WorkSet, 0, (s.Len()+size-1)/size)
	for start := 0; start < s.Len(); start += size {
		end := min(start+size, s.Len())
		chunks = append(chunks, WorkSet{
			Sources:      s.Sources[start:end:end],
			Destinations: s.Destinations[start:end:end],
			Metadata:     s.Metadata[start:end:end],
			Kwargs:       s.Kwargs[start:end:end],
		})
	}
	return chunks
}
