package navgraph

import (
	"fmt"

	"github.com/scryerhq/scryer-core/internal/executor"
)

// bfsPath finds the shortest (fewest-edges) sequence of transitions from
// fromScreenID to targetScreenID within pg, breadth-first over its
// Transitions edges. Edge order within a screen's outgoing set follows
// map iteration, which is fine: BFS still finds a shortest path, just not
// always the same one between runs when several are equally short.
func bfsPath(pg *packageGraph, fromScreenID, targetScreenID string) ([]executor.NavTransition, error) {
	if fromScreenID == targetScreenID {
		return nil, nil
	}

	adjacency := make(map[string][]transitionRecord)
	for _, t := range pg.Transitions {
		adjacency[t.From] = append(adjacency[t.From], t)
	}

	type node struct {
		screenID string
		via      *transitionRecord
		prev     string
	}

	visited := map[string]bool{fromScreenID: true}
	parent := make(map[string]node)
	queue := []string{fromScreenID}

	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]

		for i := range adjacency[cur] {
			edge := adjacency[cur][i]
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			parent[edge.To] = node{screenID: edge.To, via: &adjacency[cur][i], prev: cur}
			if edge.To == targetScreenID {
				found = true
				break
			}
			queue = append(queue, edge.To)
		}
	}

	if !found {
		return nil, fmt.Errorf("navgraph: no known path from %q to %q", fromScreenID, targetScreenID)
	}

	var reversed []executor.NavTransition
	for at := targetScreenID; at != fromScreenID; {
		n := parent[at]
		reversed = append(reversed, executor.NavTransition{
			ActionType: n.via.ActionType,
			Element:    n.via.Element,
			X:          n.via.X,
			Y:          n.via.Y,
			KeyCode:    n.via.KeyCode,
		})
		at = n.prev
	}

	path := make([]executor.NavTransition, len(reversed))
	for i, t := range reversed {
		path[len(reversed)-1-i] = t
	}
	return path, nil
}
