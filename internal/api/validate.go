package api

import (
	"fmt"

	"hgsolve/internal/model"
)

const maxInstanceNodes = 10000

func validateSolveRequest(req *model.SolveRequest) error {
	if req.Instance == "" && len(req.Nodes) == 0 {
		return fmt.Errorf("instance text or nodes required")
	}
	if req.Instance != "" && len(req.Nodes) > 0 {
		return fmt.Errorf("instance and nodes are mutually exclusive")
	}
	if len(req.Nodes) > maxInstanceNodes {
		return fmt.Errorf("too many nodes: %d (max %d)", len(req.Nodes), maxInstanceNodes)
	}
	if len(req.Instance) > 1<<22 {
		return fmt.Errorf("instance text too large")
	}
	if len(req.Nodes) > 0 && req.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0")
	}
	if req.MaxVehicles < 0 {
		return fmt.Errorf("maxVehicles must be >= 0")
	}
	for _, n := range req.Nodes {
		if n.Demand < 0 {
			return fmt.Errorf("node %d: negative demand", n.ID)
		}
	}
	return nil
}
