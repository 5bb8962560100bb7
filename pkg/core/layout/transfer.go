// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"math"
	"math/bits"
	"slices"
	"strings"

	"github.com/gomlx/npucompiler/pkg/core/shapes"
	"github.com/pkg/errors"
)

// TransferShape computes the physical shape of a tensor with the given logical shape and origin format when
// stored with the target layout. Tensors of lower rank than their origin format are first expanded with
// reshapeType (see ExpandShape).
//
// Dynamic dimensions (shapes.DimDynamic) stay dynamic in every physical axis derived from them.
// Dimensions copied from the logical shape keep their axis names.
//
// Tensors of rank lower than target.Primary.MinRank() are not tiled: the physical shape is the logical one.
// Heavy targets with blocks require target.C0 > 0.
func TransferShape(logical shapes.Shape, origin Format, reshapeType string, target Layout) (shapes.Shape, error) {
	dims, names, err := transferDims(logical.Dimensions, logical.AxisNames, origin, reshapeType, target)
	if err != nil {
		return shapes.Invalid(), errors.WithMessagef(err, "transferring shape %s from %s to %s", logical, origin, target)
	}
	if _, err := ElementCount(dims); err != nil {
		return shapes.Invalid(), errors.WithMessagef(err, "transferring shape %s from %s to %s", logical, origin, target)
	}
	return shapes.MakeNamed(logical.DType, dims, names), nil
}

// TransferRange computes the ranges of the physical dimensions given the ranges of the logical ones,
// with the same rules as TransferShape. Unbounded maxima stay unbounded.
func TransferRange(ranges shapes.Ranges, origin Format, reshapeType string, target Layout) (shapes.Ranges, error) {
	mins := make([]int, len(ranges))
	maxes := make([]int, len(ranges))
	for axis, r := range ranges {
		mins[axis] = r.Min
		maxes[axis] = r.Max
	}
	physicalMins, _, err := transferDims(mins, nil, origin, reshapeType, target)
	if err != nil {
		return nil, errors.WithMessagef(err, "transferring range minima %v from %s to %s", mins, origin, target)
	}
	physicalMaxes, _, err := transferDims(maxes, nil, origin, reshapeType, target)
	if err != nil {
		return nil, errors.WithMessagef(err, "transferring range maxima %v from %s to %s", maxes, origin, target)
	}
	physical := make(shapes.Ranges, len(physicalMins))
	for axis := range physical {
		physical[axis] = shapes.DimRange{Min: physicalMins[axis], Max: physicalMaxes[axis]}
	}
	return physical, nil
}

// ElementCount returns the number of elements of the given dimensions, or shapes.DimDynamic if any is dynamic.
// It returns ErrSizeOverflow if the count doesn't fit an int.
func ElementCount(dims []int) (int, error) {
	var c calculator
	count := 1
	for _, dim := range dims {
		count = c.mul(count, dim)
	}
	return count, c.err
}

// transferDims implements TransferShape and TransferRange. names may be nil.
func transferDims(dims []int, names []string, origin Format, reshapeType string, target Layout) ([]int, []string, error) {
	primary := target.Primary
	if !primary.IsValid() || !origin.IsValid() {
		return nil, nil, errors.Errorf("invalid format in transfer from %s to %s", origin, target)
	}
	if len(dims) < primary.MinRank() {
		return slices.Clone(dims), slices.Clone(names), nil
	}
	if primary.IsOrigin() {
		return permute(dims, names, origin, reshapeType, primary)
	}
	if target.C0 <= 0 {
		return nil, nil, errors.Errorf("layout %s requires a block factor", target)
	}
	if primary == FractalNZ {
		return transferFractalNZ(dims, names, target.C0)
	}

	resolved, err := ResolveOrigin(origin, primary)
	if err != nil {
		return nil, nil, err
	}
	full, fullNames, err := expandNamed(dims, names, resolved, reshapeType)
	if err != nil {
		return nil, nil, err
	}
	t := tiler{axes: resolved.Axes(), dims: full, names: fullNames, c0: target.C0}
	var physical []int
	var physicalNames []string
	switch primary {
	case NC1HWC0:
		physical = []int{t.dim('N'), t.c1(), t.dim('H'), t.dim('W'), t.c0}
		physicalNames = t.namesOf("N", "", "H", "W", "")
	case NDC1HWC0:
		physical = []int{t.dim('N'), t.dim('D'), t.c1(), t.dim('H'), t.dim('W'), t.c0}
		physicalNames = t.namesOf("N", "D", "", "H", "W", "")
	case FractalZ, FractalZ3D:
		physical = t.fractalZ(target.Sub)
		physicalNames = nil
	case C1HWNCoC0:
		physical = []int{t.c1(), t.dim('H'), t.dim('W'), t.dim('N'), t.c0, t.c0}
		physicalNames = t.namesOf("", "H", "W", "N", "", "")
	default:
		return nil, nil, errors.Errorf("transfer to format %s not implemented", primary)
	}
	if t.calc.err != nil {
		return nil, nil, t.calc.err
	}
	return physical, physicalNames, nil
}

// permute a tensor between origin formats of the same family. Transfers involving ND copy the dimensions.
func permute(dims []int, names []string, origin Format, reshapeType string, target Format) ([]int, []string, error) {
	if target == ND || origin == ND || target == origin {
		return slices.Clone(dims), slices.Clone(names), nil
	}
	if origin.Family() != target.Family() {
		return nil, nil, errors.Wrapf(ErrIncompatibleOrigin, "cannot permute format %s to %s", origin, target)
	}
	full, fullNames, err := expandNamed(dims, names, origin, reshapeType)
	if err != nil {
		return nil, nil, err
	}
	originAxes, targetAxes := origin.Axes(), target.Axes()
	permuted := make([]int, len(targetAxes))
	var permutedNames []string
	if fullNames != nil {
		permutedNames = make([]string, len(targetAxes))
	}
	for ii, letter := range []byte(targetAxes) {
		from := strings.IndexByte(originAxes, letter)
		permuted[ii] = full[from]
		if fullNames != nil {
			permutedNames[ii] = fullNames[from]
		}
	}
	return permuted, permutedNames, nil
}

// transferFractalNZ tiles the two trailing axes [..., m, n] into [..., ceil(n/c0), ceil(m/16), 16, c0].
func transferFractalNZ(dims []int, names []string, c0 int) ([]int, []string, error) {
	var c calculator
	rank := len(dims)
	m, n := dims[rank-2], dims[rank-1]
	physical := append(slices.Clone(dims[:rank-2]), c.ceilDiv(n, c0), c.ceilDiv(m, CubeBlock), CubeBlock, c0)
	var physicalNames []string
	if names != nil {
		physicalNames = append(slices.Clone(names[:rank-2]), "", "", "", "")
	}
	return physical, physicalNames, c.err
}

// tiler holds a tensor expanded to the full rank of its origin format.
type tiler struct {
	axes  string
	dims  []int
	names []string
	c0    int
	calc  calculator
}

func (t *tiler) dim(letter byte) int {
	return t.dims[strings.IndexByte(t.axes, letter)]
}

// c1 is the number of blocks of c0 channels.
func (t *tiler) c1() int {
	return t.calc.ceilDiv(t.dim('C'), t.c0)
}

// spatial returns the product of the spatial axes (D, H, W) present in the origin format.
func (t *tiler) spatial() int {
	product := 1
	for _, letter := range []byte("DHW") {
		if strings.IndexByte(t.axes, letter) >= 0 {
			product = t.calc.mul(product, t.dim(letter))
		}
	}
	return product
}

// namesOf returns the names for the physical axes: each letter selects the name of that origin axis, "" for none.
func (t *tiler) namesOf(letters ...string) []string {
	if t.names == nil {
		return nil
	}
	names := make([]string, len(letters))
	for ii, letter := range letters {
		if letter != "" {
			names[ii] = t.names[strings.IndexByte(t.axes, letter[0])]
		}
	}
	return names
}

// fractalZ tiles a convolution filter, with N the output channels and C the input channels per group.
//
// Without groups the layout is [C1*spatial, ceil(N/16), 16, c0]. With groups, e groups are merged into one
// block so that both channel counts align to their block sizes.
func (t *tiler) fractalZ(groups int) []int {
	c := &t.calc
	spatial := t.spatial()
	if groups <= 1 {
		return []int{c.mul(t.c1(), spatial), c.ceilDiv(t.dim('N'), CubeBlock), CubeBlock, t.c0}
	}
	cin, n := t.dim('C'), t.dim('N')
	if cin == shapes.DimDynamic || n == shapes.DimDynamic {
		return []int{shapes.DimDynamic, shapes.DimDynamic, CubeBlock, t.c0}
	}
	if n%groups != 0 {
		c.fail(errors.Wrapf(ErrGroupMismatch, "%d output channels for %d groups", n, groups))
		return nil
	}
	cout := n / groups
	if cin == 0 || cout == 0 {
		return []int{0, 0, CubeBlock, t.c0}
	}
	e := min(lcm(lcm(cin, t.c0)/cin, lcm(cout, CubeBlock)/cout), groups)
	cinOpt := c.alignUp(c.mul(e, cin), t.c0)
	coutOpt := c.alignUp(c.mul(e, cout), CubeBlock)
	numBlocks := c.ceilDiv(groups, e)
	return []int{c.mul(c.mul(numBlocks, cinOpt/t.c0), spatial), coutOpt / CubeBlock, CubeBlock, t.c0}
}

// calculator does overflow-checked int arithmetic where shapes.DimDynamic is absorbing.
// The first error is kept.
type calculator struct {
	err error
}

func (c *calculator) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *calculator) mul(a, b int) int {
	if a == shapes.DimDynamic || b == shapes.DimDynamic {
		return shapes.DimDynamic
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt {
		c.fail(errors.Wrapf(ErrSizeOverflow, "%d x %d", a, b))
		return 0
	}
	return int(lo)
}

func (c *calculator) ceilDiv(a, b int) int {
	if a == shapes.DimDynamic {
		return shapes.DimDynamic
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func (c *calculator) alignUp(a, b int) int {
	return c.mul(c.ceilDiv(a, b), b)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
