package workbook

import "sort"

// Region is a detected rectangular area of populated cells, identified by
// a sheet-local integer id.
type Region struct {
	ID    int
	Start Address
	End   Address
}

// RangeString formats the region as an A1 range.
func (r Region) RangeString() string {
	return r.Start.String() + ":" + r.End.String()
}

// DetectRegions groups a sheet's populated cells into 4-connected
// components and returns each component's bounding rectangle, numbered in
// row-major reading order of each region's top-left corner. This is the
// default "Region detector" external collaborator; callers that
// need region ids stable across edits should prefer checkpoints over
// re-detection, since adding or removing cells can merge or split regions.
func DetectRegions(s *Sheet) []Region {
	visited := make(map[Address]bool, len(s.cells))
	var components [][]Address

	for addr := range s.cells {
		if visited[addr] {
			continue
		}
		comp := floodFill(s, addr, visited)
		components = append(components, comp)
	}

	regions := make([]Region, 0, len(components))
	for _, comp := range components {
		start, end := comp[0], comp[0]
		for _, a := range comp {
			if a.Col < start.Col {
				start.Col = a.Col
			}
			if a.Row < start.Row {
				start.Row = a.Row
			}
			if a.Col > end.Col {
				end.Col = a.Col
			}
			if a.Row > end.Row {
				end.Row = a.Row
			}
		}
		regions = append(regions, Region{Start: start, End: end})
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Start.Less(regions[j].Start)
	})
	for i := range regions {
		regions[i].ID = i
	}
	return regions
}

// ResolveRegion returns the A1 range for a sheet-local region id, detecting
// regions fresh. Returns false if the id is out of
// range.
func ResolveRegion(s *Sheet, id int) (Region, bool) {
	regions := DetectRegions(s)
	if id < 0 || id >= len(regions) {
		return Region{}, false
	}
	return regions[id], true
}

func floodFill(s *Sheet, start Address, visited map[Address]bool) []Address {
	stack := []Address{start}
	var comp []Address
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[a] {
			continue
		}
		if _, ok := s.cells[a]; !ok {
			continue
		}
		visited[a] = true
		comp = append(comp, a)
		neighbors := []Address{
			{Col: a.Col - 1, Row: a.Row},
			{Col: a.Col + 1, Row: a.Row},
			{Col: a.Col, Row: a.Row - 1},
			{Col: a.Col, Row: a.Row + 1},
		}
		for _, n := range neighbors {
			if n.Col < 1 || n.Row < 1 || visited[n] {
				continue
			}
			if _, ok := s.cells[n]; ok {
				stack = append(stack, n)
			}
		}
	}
	return comp
}
