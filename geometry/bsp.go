package geometry

// node is a BSP tree node. Polygons coplanar with the splitting plane are
// kept at the node; the rest go into the front and back subtrees.
type node struct {
	plane    *Plane
	front    *node
	back     *node
	polygons []Polygon
}

func newNode(polygons []Polygon) *node {
	n := &node{}
	if len(polygons) > 0 {
		n.build(polygons)
	}
	return n
}

// invert turns solid space into empty space and vice versa.
func (n *node) invert() {
	for i := range n.polygons {
		n.polygons[i] = n.polygons[i].Flipped()
	}
	if n.plane != nil {
		f := n.plane.Flipped()
		n.plane = &f
	}
	if n.front != nil {
		n.front.invert()
	}
	if n.back != nil {
		n.back.invert()
	}
	n.front, n.back = n.back, n.front
}

// clipPolygons removes the parts of polygons that lie inside this tree.
func (n *node) clipPolygons(polygons []Polygon) []Polygon {
	if n.plane == nil {
		return append([]Polygon(nil), polygons...)
	}
	var fronts, backs []Polygon
	for _, p := range polygons {
		n.plane.splitPolygon(p, &fronts, &backs, &fronts, &backs)
	}
	if n.front != nil {
		fronts = n.front.clipPolygons(fronts)
	}
	if n.back != nil {
		backs = n.back.clipPolygons(backs)
	} else {
		backs = nil
	}
	return append(fronts, backs...)
}

// clipTo removes every polygon of this tree that lies inside other.
func (n *node) clipTo(other *node) {
	n.polygons = other.clipPolygons(n.polygons)
	if n.front != nil {
		n.front.clipTo(other)
	}
	if n.back != nil {
		n.back.clipTo(other)
	}
}

func (n *node) allPolygons() []Polygon {
	out := append([]Polygon(nil), n.polygons...)
	if n.front != nil {
		out = append(out, n.front.allPolygons()...)
	}
	if n.back != nil {
		out = append(out, n.back.allPolygons()...)
	}
	return out
}

func (n *node) build(polygons []Polygon) {
	if len(polygons) == 0 {
		return
	}
	if n.plane == nil {
		p := polygons[0].Plane
		n.plane = &p
	}
	var fronts, backs []Polygon
	for _, p := range polygons {
		n.plane.splitPolygon(p, &n.polygons, &n.polygons, &fronts, &backs)
	}
	if len(fronts) > 0 {
		if n.front == nil {
			n.front = &node{}
		}
		n.front.build(fronts)
	}
	if len(backs) > 0 {
		if n.back == nil {
			n.back = &node{}
		}
		n.back.build(backs)
	}
}
