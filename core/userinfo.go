// userinfo.go - Zusammenfassung fuer den Aufrufer
// Enthaelt: UserInformation, NewUserInformation
package core

import (
	"github.com/google/uuid"

	"github.com/7blacky7/quantkit/graph"
	"github.com/7blacky7/quantkit/mixedprecision"
)

// NodeAssignment is one row of the final bitwidth report.
type NodeAssignment struct {
	Node      graph.NodeID
	Name      string
	Kind      graph.OpKind
	Bits      int
	Threshold float64
}

// UserInformation summarizes a finished quantization run for the
// caller: the final per-node assignment plus the scheduling metadata.
// Read-only, produced once at the end of the run.
type UserInformation struct {
	RunID       string
	Assignments []NodeAssignment
	Scheduling  mixedprecision.SchedulingInfo
}

// NewUserInformation builds the summary from a finished run result.
func NewUserInformation(res *RunResult) *UserInformation {
	info := &UserInformation{
		RunID:      uuid.NewString(),
		Scheduling: res.Scheduling,
	}
	res.BitWidths.All(func(id graph.NodeID, _ graph.PrecisionConfig) bool {
		n := res.Graph.Node(id)
		info.Assignments = append(info.Assignments, NodeAssignment{
			Node:      id,
			Name:      n.Name,
			Kind:      n.Kind,
			Bits:      n.Params.Bits,
			Threshold: n.Params.Threshold,
		})
		return true
	})
	return info
}
