package route

import "voxelscout.ai/internal/nav/voxel"

type probeNode struct {
	col voxel.Column
	y   int
}

// escapeReachable probes whether a maximum-depth drop into the column
// (entry, floor) can be climbed out of again. A breadth-first walk fans
// out from the landing over columns at the landing's level or one below
// it, looking for any neighbor whose surface sits one above the current
// floor. Visiting more than the probe budget without an answer reports
// exhausted; the caller treats that the same as no exit.
func (e *searchEnv) escapeReachable(entry voxel.Column, floor int) (found, exhausted bool) {
	limit := e.budget.EscapeProbe
	if limit <= 0 {
		return false, true
	}

	visited := map[voxel.Column]bool{entry: true}
	queue := make([]probeNode, 0, limit)
	queue = append(queue, probeNode{col: entry, y: floor})

	for head := 0; head < len(queue); head++ {
		if head >= limit {
			return false, true
		}
		cur := queue[head]
		for _, d := range dirs {
			nb := voxel.Column{X: cur.col.X + d.X, Z: cur.col.Z + d.Z}
			if visited[nb] {
				continue
			}
			nbY, ok := e.hm[nb]
			if !ok {
				continue
			}
			if !e.clearColumn(nb, nbY) {
				continue
			}
			if !e.prof.AllowHazards && e.hazardousStand(nb, nbY) {
				continue
			}
			if nbY == floor+1 {
				return true, false
			}
			if nbY != cur.y && nbY != cur.y-1 {
				continue
			}
			visited[nb] = true
			queue = append(queue, probeNode{col: nb, y: nbY})
		}
	}
	return false, false
}
