package broker

import (
	"sort"
	"sync"

	"bsn-realtime/internal/events"
)

// Registry is the local group membership table of one gateway instance.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]map[string]Handle)}
}

// Add reports whether h was added and whether it is the group's first local member.
func (r *Registry) Add(group string, h Handle) (added, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]Handle)
		r.groups[group] = members
	}
	if _, exists := members[h.ID()]; exists {
		return false, false
	}
	members[h.ID()] = h
	return true, len(members) == 1
}

// Remove reports whether h was removed and whether the group is now empty.
func (r *Registry) Remove(group string, h Handle) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return false, false
	}
	if _, exists := members[h.ID()]; !exists {
		return false, false
	}
	delete(members, h.ID())
	if len(members) == 0 {
		delete(r.groups, group)
		return true, true
	}
	return true, false
}

// restore undoes an Add or Remove after the transport refused the change.
func (r *Registry) restore(group string, h Handle, present bool) {
	if present {
		r.Add(group, h)
	} else {
		r.Remove(group, h)
	}
}

func (r *Registry) Members(group string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[group]
	out := make([]Handle, 0, len(members))
	for _, h := range members {
		out = append(out, h)
	}
	return out
}

func (r *Registry) Contains(group string, h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[group][h.ID()]
	return ok
}

// Groups returns the groups with at least one local member, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.groups))
	for g := range r.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Deliver hands evt to every local member of group and returns how many
// handles received it.
func (r *Registry) Deliver(group string, evt events.Event) int {
	members := r.Members(group)
	for _, h := range members {
		h.Deliver(evt)
	}
	return len(members)
}
