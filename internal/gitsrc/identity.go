package gitsrc

import "sync"

// People interns author identities into dense integer IDs. IDs are assigned
// in first-seen order, so building the table once over the full commit range
// yields identical IDs in every partition.
type People struct {
	mu    sync.Mutex
	ids   map[string]int
	names []string
}

// NewPeople creates an empty identity table.
func NewPeople() *People {
	return &People{ids: make(map[string]int)}
}

// PeopleFromCommits builds an identity table covering every author in the
// given commits, in commit order.
func PeopleFromCommits(commits []Commit) *People {
	p := NewPeople()

	for _, c := range commits {
		p.Resolve(c.Author)
	}

	return p
}

// Resolve returns the ID for the given author, assigning the next free ID on
// first sight.
func (p *People) Resolve(author string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.ids[author]; ok {
		return id
	}

	id := len(p.names)
	p.ids[author] = id
	p.names = append(p.names, author)

	return id
}

// Index returns a copy of the ID to author mapping for report output.
func (p *People) Index() map[int]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int]string, len(p.names))

	for id, name := range p.names {
		out[id] = name
	}

	return out
}

// Len returns the number of interned authors.
func (p *People) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.names)
}
