package services

import (
	"irb-review-api/models"
)

// dependencyEdge is one arc in a board's condition graph: the question
// carrying the condition depends on the answer of another question.
type dependencyEdge struct {
	from int
	to   int
}

// hasCycle runs Kahn's algorithm over the arcs: peel nodes without
// incoming edges until none remain; leftovers form at least one cycle.
func hasCycle(edges []dependencyEdge) bool {
	adjacency := make(map[int][]int)
	indegree := make(map[int]int)
	nodes := make(map[int]bool)
	for _, e := range edges {
		adjacency[e.from] = append(adjacency[e.from], e.to)
		indegree[e.to]++
		nodes[e.from] = true
		nodes[e.to] = true
	}

	queue := make([]int, 0, len(nodes))
	for n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, m := range adjacency[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	return visited != len(nodes)
}

func conditionEdges(conditions []models.QuestionCondition) []dependencyEdge {
	edges := make([]dependencyEdge, 0, len(conditions))
	for _, c := range conditions {
		edges = append(edges, dependencyEdge{from: c.QuestionID, to: c.DependsOnQuestionID})
	}
	return edges
}

// HasConditionCycle reports whether a board's stored conditions contain
// a dependency cycle. Used when importing whole questionnaires; single
// additions go through WouldCreateCycle.
func HasConditionCycle(conditions []models.QuestionCondition) bool {
	return hasCycle(conditionEdges(conditions))
}

// WouldCreateCycle reports whether adding a condition on questionID that
// inspects dependsOnQuestionID would make the board's dependency graph
// cyclic. A question depending on itself is always a cycle. The visible
// question evaluator assumes acyclicity, so every write path must call
// this first.
func WouldCreateCycle(existing []models.QuestionCondition, questionID, dependsOnQuestionID int) bool {
	if questionID == dependsOnQuestionID {
		return true
	}
	edges := conditionEdges(existing)
	edges = append(edges, dependencyEdge{from: questionID, to: dependsOnQuestionID})
	return hasCycle(edges)
}
