package types

// Mutation is a single record write or deletion. Record is one of the
// persisted record types understood by the state store.
type Mutation struct {
	Record any
	Delete bool
}

// ChangeSet collects every record an intent touches so the store can commit
// them in one atomic write. Engines stage all mutations on copies and only
// hand the set to the store once every check has passed.
type ChangeSet struct {
	mutations []Mutation
	events    []*Event
}

// NewChangeSet returns an empty change set.
func NewChangeSet() *ChangeSet { return &ChangeSet{} }

// Put stages a record write. A later Put of the same record replaces the
// earlier one when the store applies the set in order.
func (c *ChangeSet) Put(record any) {
	if c == nil || record == nil {
		return
	}
	c.mutations = append(c.mutations, Mutation{Record: record})
}

// Remove stages a record deletion.
func (c *ChangeSet) Remove(record any) {
	if c == nil || record == nil {
		return
	}
	c.mutations = append(c.mutations, Mutation{Record: record, Delete: true})
}

// Emit queues an event to publish after the set commits.
func (c *ChangeSet) Emit(evt *Event) {
	if c == nil || evt == nil {
		return
	}
	c.events = append(c.events, evt)
}

// Mutations returns the staged mutations in order.
func (c *ChangeSet) Mutations() []Mutation {
	if c == nil {
		return nil
	}
	return append([]Mutation(nil), c.mutations...)
}

// Events returns the queued events in order.
func (c *ChangeSet) Events() []*Event {
	if c == nil {
		return nil
	}
	return append([]*Event(nil), c.events...)
}

// Len reports the number of staged mutations.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.mutations)
}
