package usearch

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections int
}

// Stats is a point-in-time snapshot of the graph shape. Collecting it
// walks every node; run it while no adds are in flight for exact numbers.
type Stats struct {
	Size     int
	Capacity int
	MaxLevel int
	Levels   []LevelStats
}

// Stats summarizes the graph structure per layer.
func (ix *Index) Stats() Stats {
	size := ix.graph.Size()
	maxLevel := ix.graph.MaxLevel()
	nodes := ix.graph.Nodes()

	levels := make([]LevelStats, maxLevel+1)
	for i := range levels {
		levels[i].Level = i
	}

	buf := make([]uint32, 0, nodes.LayerCap(0))
	for id := uint32(0); int(id) < size; id++ {
		top := nodes.Top(id)
		for layer := 0; layer <= top && layer <= maxLevel; layer++ {
			buf = nodes.Neighbors(id, layer, buf)
			levels[layer].Nodes++
			levels[layer].Connections += len(buf)
		}
	}
	for i := range levels {
		if levels[i].Nodes > 0 {
			levels[i].AvgConnections = levels[i].Connections / levels[i].Nodes
		}
	}

	return Stats{
		Size:     size,
		Capacity: ix.graph.Capacity(),
		MaxLevel: maxLevel,
		Levels:   levels,
	}
}
