// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package partitioner groups the supported nodes of a graph into maximal partitions that can be
// handed to a delegate as a unit.
//
// A partition is a set of call nodes accepted by a predicate, connected by def-use edges, such that
// contracting the partition into a single node keeps the graph acyclic: no path leaves the partition
// and re-enters it.
package partitioner

import (
	"fmt"
	"slices"

	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Predicate returns whether a node can be delegated.
type Predicate func(node *graph.Node) bool

// Options configure Propose.
type Options struct {
	// AllowSingleNodePartition keeps partitions with only one node. If false they are dropped and
	// their node is left to the host.
	AllowSingleNodePartition bool
}

// Partition is a set of nodes lowered together.
type Partition struct {
	// Id is the partition number, in the topological order of the partitions' first nodes.
	Id int

	// Nodes are the members of the partition, in topological order.
	Nodes []*graph.Node
}

// Tag returns the delegation tag of the partition, "tag<Id>".
func (p *Partition) Tag() string {
	return fmt.Sprintf("tag%d", p.Id)
}

// Contains returns whether node is a member of the partition.
func (p *Partition) Contains(node *graph.Node) bool {
	return slices.Contains(p.Nodes, node)
}

// String implements fmt.Stringer.
func (p *Partition) String() string {
	names := make([]string, len(p.Nodes))
	for ii, n := range p.Nodes {
		names[ii] = n.Name()
	}
	return fmt.Sprintf("Partition #%d %v", p.Id, names)
}

// group is a partition under construction.
type group struct {
	members sets.Set[*graph.Node]
}

// Propose visits the nodes of g in reverse topological order. Each call node accepted by pred opens a
// new group, which is then merged with the groups of its users, as long as the merge doesn't create a
// cycle. It returns the resulting partitions, never empty, ordered (and numbered) by their first node.
//
// Placeholders and the output node are never part of a partition.
func Propose(g *graph.Graph, pred Predicate, opts Options) []*Partition {
	assignment := make(map[*graph.Node]*group)
	nodes := g.Nodes()
	for ii := len(nodes) - 1; ii >= 0; ii-- {
		node := nodes[ii]
		if node.Kind() != graph.NodeKindCallFunction || !pred(node) {
			continue
		}
		current := &group{members: sets.MakeWith(node)}
		assignment[node] = current
		for _, user := range node.Users() {
			userGroup, found := assignment[user]
			if !found || userGroup == current {
				continue
			}
			if createsCycle(assignment, current, userGroup) {
				klog.V(2).Infof("partitioner: not merging %q with the partition of %q: it would create a cycle",
					node.Name(), user.Name())
				continue
			}
			// Merge the current group into the user's group.
			for member := range current.members {
				userGroup.members.Insert(member)
				assignment[member] = userGroup
			}
			current = userGroup
		}
	}

	// Collect unique groups.
	seen := sets.Make[*group]()
	var groups []*group
	for _, node := range nodes {
		grp, found := assignment[node]
		if !found || seen.Has(grp) {
			continue
		}
		seen.Insert(grp)
		if len(grp.members) == 1 && !opts.AllowSingleNodePartition {
			klog.V(2).Infof("partitioner: dropping single node partition with %q", node.Name())
			continue
		}
		groups = append(groups, grp)
	}
	// groups are already in the order of their first node, since nodes are visited in topological order.
	partitions := make([]*Partition, len(groups))
	for ii, grp := range groups {
		members := sets.SortedFunc(grp.members, func(a, b *graph.Node) int { return int(a.Id()) - int(b.Id()) })
		partitions[ii] = &Partition{Id: ii, Nodes: members}
		klog.V(1).Infof("partitioner: %s", partitions[ii])
	}
	return partitions
}

// createsCycle returns whether merging g1 and g2 would create a path that leaves the merged set and
// re-enters it.
//
// The walk follows the users of the merged set that are outside of it. Other groups are contracted:
// reaching any member of a group continues from the users of all its members, since the group will
// be executed as a single node.
func createsCycle(assignment map[*graph.Node]*group, g1, g2 *group) bool {
	inMerged := func(n *graph.Node) bool { return g1.members.Has(n) || g2.members.Has(n) }
	visited := sets.Make[*graph.Node]()
	visitedGroups := sets.MakeWith(g1, g2)
	var queue []*graph.Node
	enqueueUsers := func(n *graph.Node) {
		for _, user := range n.Users() {
			if !visited.Has(user) {
				visited.Insert(user)
				queue = append(queue, user)
			}
		}
	}
	for _, grp := range []*group{g1, g2} {
		for member := range grp.members {
			for _, user := range member.Users() {
				if !inMerged(user) && !visited.Has(user) {
					visited.Insert(user)
					queue = append(queue, user)
				}
			}
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if inMerged(node) {
			return true
		}
		grp, found := assignment[node]
		if !found {
			enqueueUsers(node)
			continue
		}
		if visitedGroups.Has(grp) {
			continue
		}
		visitedGroups.Insert(grp)
		for member := range grp.members {
			visited.Insert(member)
			enqueueUsers(member)
		}
	}
	return false
}

// Tag sets the delegation tag metadata of every member of the partitions, and returns a map of tag to
// partition.
func Tag(partitions []*Partition) map[string]*Partition {
	tags := make(map[string]*Partition, len(partitions))
	for _, p := range partitions {
		tag := p.Tag()
		tags[tag] = p
		for _, n := range p.Nodes {
			n.SetMeta(graph.MetaDelegationTag, tag)
		}
	}
	return tags
}
