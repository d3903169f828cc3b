package autodiff

// collect returns the nodes (weights included) and connectors n depends on, each once, in
// breadth-first discovery order starting with n itself.
func (n *Node[T]) collect() (nodes []*Node[T], connectors []*Connector[T]) {
	seenNodes := map[*Node[T]]bool{n: true}
	seenConnectors := make(map[*Connector[T]]bool)
	nodes = append(nodes, n)
	for i := 0; i < len(nodes); i++ {
		current := nodes[i]
		c := current.producer
		if c == nil {
			continue
		}
		record, err := c.recordFor(current)
		if err != nil {
			continue
		}
		if !seenConnectors[c] {
			seenConnectors[c] = true
			connectors = append(connectors, c)
			for _, w := range c.weights {
				if !seenNodes[w] {
					seenNodes[w] = true
					nodes = append(nodes, w)
				}
			}
		}
		for _, in := range record.inputs {
			if !seenNodes[in] {
				seenNodes[in] = true
				nodes = append(nodes, in)
			}
		}
	}
	return nodes, connectors
}

// CollectNodes returns every node n depends on, itself and weights included, each once.
func (n *Node[T]) CollectNodes() []*Node[T] {
	nodes, _ := n.collect()
	return nodes
}

// CollectWeights returns every weight node n depends on, each once.
func (n *Node[T]) CollectWeights() []*Node[T] {
	nodes, _ := n.collect()
	var weights []*Node[T]
	for _, node := range nodes {
		if node.isWeight {
			weights = append(weights, node)
		}
	}
	return weights
}

// CollectConnectors returns every connector n depends on, each once.
func (n *Node[T]) CollectConnectors() []*Connector[T] {
	_, connectors := n.collect()
	return connectors
}

// IterateNodes calls fn once for every node returned by CollectNodes.
func (n *Node[T]) IterateNodes(fn func(node *Node[T])) {
	for _, node := range n.CollectNodes() {
		fn(node)
	}
}

// IterateWeights calls fn once for every weight returned by CollectWeights.
func (n *Node[T]) IterateWeights(fn func(weight *Node[T])) {
	for _, w := range n.CollectWeights() {
		fn(w)
	}
}

// IterateConnectors calls fn once for every connector returned by CollectConnectors.
func (n *Node[T]) IterateConnectors(fn func(c *Connector[T])) {
	for _, c := range n.CollectConnectors() {
		fn(c)
	}
}
