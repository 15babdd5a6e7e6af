package analyzer

import "fmt"

// Visibility is how a region uses a particular parent: through a public
// edge the parent is visible to anything that can see the region, through
// a private edge the parent is visible to the region itself only.
type Visibility int

const (
	Public Visibility = iota
	Private
)

// RegionNode is one region in the usage DAG (spec §4.6 "Regions and
// deployment"). Parents records every region this one was declared
// inside, each with the visibility it was given there; a region may have
// more than one parent.
type RegionNode struct {
	Name       string
	Deployable bool
	Parents    map[string]Visibility
}

// RegionGraph tracks every declared region and answers the visibility and
// deployment queries the analyzer needs while checking cross-region
// references.
type RegionGraph struct {
	regions map[string]*RegionNode
}

// NewRegionGraph returns an empty graph.
func NewRegionGraph() *RegionGraph {
	return &RegionGraph{regions: make(map[string]*RegionNode)}
}

// Declare registers region name, deployable if it is a top-level region
// that may itself contain other regions.
func (g *RegionGraph) Declare(name string, deployable bool) *RegionNode {
	if r, ok := g.regions[name]; ok {
		return r
	}
	r := &RegionNode{Name: name, Deployable: deployable, Parents: map[string]Visibility{}}
	g.regions[name] = r
	return r
}

// AddParent records that child was declared inside parent with the given
// visibility.
func (g *RegionGraph) AddParent(child, parent string, vis Visibility) error {
	c, ok := g.regions[child]
	if !ok {
		return fmt.Errorf("analyzer: region %q is not declared", child)
	}
	if _, ok := g.regions[parent]; !ok {
		return fmt.Errorf("analyzer: region %q is not declared", parent)
	}
	c.Parents[parent] = vis
	return nil
}

// IsDeployable reports whether name was declared as a deployable region.
func (g *RegionGraph) IsDeployable(name string) bool {
	r, ok := g.regions[name]
	return ok && r.Deployable
}

// regionOf returns a parent of r, or "" if r is top-level. The original
// notion of "region_of" assumes a single dominant parent for the purpose
// of deployed_in_region. Parents are kept in a map and declaration order
// is not tracked, so for a region with several parents the one returned
// is whichever the map iteration yields first, which is not fixed.
func (g *RegionGraph) regionOf(name string) string {
	r, ok := g.regions[name]
	if !ok || len(r.Parents) == 0 {
		return ""
	}
	for p := range r.Parents {
		return p
	}
	return ""
}

// DeployedInRegion computes deployed_in_region(obj) = region_of(region_of(obj))
// per spec §4.6, returning "(orphan)" when that's undefined.
func (g *RegionGraph) DeployedInRegion(objRegion string) string {
	if objRegion == "" {
		return "(orphan)"
	}
	parent := g.regionOf(objRegion)
	if parent == "" {
		return "(orphan)"
	}
	grandparent := g.regionOf(parent)
	if grandparent == "" {
		return "(orphan)"
	}
	return grandparent
}

// VisibleFrom reports whether an object declared in fromRegion may
// reference an object declared in targetRegion. A region always sees its
// own direct parents, whatever their visibility; beyond the first hop
// only public edges extend visibility, so a region R1 used privately by
// R2 is hidden from anything that reaches R2 rather than R1 itself.
func (g *RegionGraph) VisibleFrom(fromRegion, targetRegion string) bool {
	if targetRegion == "" || fromRegion == targetRegion {
		return true
	}
	r, ok := g.regions[fromRegion]
	if !ok {
		return false
	}
	visited := map[string]bool{fromRegion: true}
	for parent := range r.Parents {
		if parent == targetRegion {
			return true
		}
		if g.publicReaches(parent, targetRegion, visited) {
			return true
		}
	}
	return false
}

// publicReaches extends visibility from an already-visible region through
// its public parent edges only.
func (g *RegionGraph) publicReaches(from, target string, visited map[string]bool) bool {
	if visited[from] {
		return false
	}
	visited[from] = true
	r, ok := g.regions[from]
	if !ok {
		return false
	}
	for parent, vis := range r.Parents {
		if vis != Public {
			continue
		}
		if parent == target || g.publicReaches(parent, target, visited) {
			return true
		}
	}
	return false
}
