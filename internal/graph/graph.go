package graph

import "fmt"

// Node is one typed unit of work in a workflow graph. Inputs hold either
// literal values or 2-element [nodeID, outputSlot] references produced by Ref.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Graph is the server wire format: a mapping from string node identifiers to
// nodes. It marshals directly to the JSON object submitted with a job.
type Graph map[string]Node

// Ref builds a reference to another node's output slot.
func Ref(nodeID string, slot int) []any {
	return []any{nodeID, slot}
}

// RefTarget reports the node identifier a reference input points at. Literal
// inputs return false. Slot values survive JSON round-trips as float64, so
// both numeric representations are accepted.
func RefTarget(value any) (string, bool) {
	list, ok := value.([]any)
	if !ok || len(list) != 2 {
		return "", false
	}
	id, ok := list[0].(string)
	if !ok {
		return "", false
	}
	switch list[1].(type) {
	case int, int64, float64:
		return id, true
	}
	return "", false
}

// Validate checks that every reference input points at an existing node and
// that the reference structure is acyclic.
func (g Graph) Validate() error {
	for id, node := range g {
		for name, value := range node.Inputs {
			target, ok := RefTarget(value)
			if !ok {
				continue
			}
			if _, exists := g[target]; !exists {
				return fmt.Errorf("node %s input %s references unknown node %s", id, name, target)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("reference cycle through node %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, value := range g[id].Inputs {
			if target, ok := RefTarget(value); ok {
				if err := visit(target); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for id := range g {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
