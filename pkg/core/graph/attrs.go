// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding"
	"reflect"
	"slices"

	"github.com/gomlx/exceptions"
)

// Attribute keys read by the compiler passes.
const (
	// AttrIsWeight (bool) marks constant/weight nodes. Const and Variable nodes are always weights.
	AttrIsWeight = "_is_weight"

	// AttrWeightAlias (string) is shared by weight nodes holding the same tensor in different places of the
	// graph, typically one in the main graph and one per subgraph using it.
	AttrWeightAlias = "_weight_alias"

	// AttrFormatAgnostic (string or AgnosticKind): "none", "paired" or "all". See AgnosticKind.
	AttrFormatAgnostic = "_format_agnostic"

	// AttrFormatAgnosticExceptInput ([]int) lists input indices excluded from the agnostic rule.
	AttrFormatAgnosticExceptInput = "_format_agnostic_except_input"

	// AttrFormatAgnosticExceptOutput ([]int) lists output indices excluded from the agnostic rule.
	AttrFormatAgnosticExceptOutput = "_format_agnostic_except_output"

	// AttrFormatContinuous (bool) requires the layouts of the node to match its peers without conversions.
	AttrFormatContinuous = "_format_continuous"

	// AttrGroups (int) is the number of groups of a grouped convolution.
	AttrGroups = "groups"

	// AttrParentNodeIndex (int) is set on the Data nodes of a subgraph: the input index of the parent node
	// it receives.
	AttrParentNodeIndex = "_parent_node_index"

	// AttrCompilerInserted (bool) marks nodes inserted by the compiler, e.g. reshapes or layout conversions.
	AttrCompilerInserted = "_compiler_inserted"

	// AttrKeepDType (bool) pins the dtype of a node regardless of the precision mode.
	AttrKeepDType = "_keep_dtype"
)

// AgnosticKind is the declared format-agnostic behavior of a node.
type AgnosticKind int

const (
	// AgnosticNone nodes depend on the layout of their tensors: kernel capabilities decide.
	AgnosticNone AgnosticKind = iota

	// AgnosticPaired nodes accept any layout, as long as input i and output i use the same one.
	AgnosticPaired

	// AgnosticAll nodes accept any layout, as long as all their (non-excluded) inputs and outputs use the same one.
	AgnosticAll
)

//go:generate go tool enumer -type=AgnosticKind -trimprefix=Agnostic -transform=lower -text -yaml -output=gen_agnostickind_enumer.go attrs.go

// SetAttr sets an attribute of the node. It returns the node, so calls can be chained.
func (n *Node) SetAttr(key string, value any) *Node {
	if n.attrs == nil {
		n.attrs = make(map[string]any)
	}
	n.attrs[key] = value
	return n
}

// Attr returns the attribute value and whether it was found.
func (n *Node) Attr(key string) (value any, found bool) {
	value, found = n.attrs[key]
	return
}

// HasAttr returns whether the attribute is set (to a non-nil value).
func (n *Node) HasAttr(key string) bool {
	value, found := n.attrs[key]
	return found && value != nil
}

// AttrKeys returns the attribute keys of the node, sorted.
func (n *Node) AttrKeys() []string {
	keys := make([]string, 0, len(n.attrs))
	for key := range n.attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// MustGetAttr returns the attribute converted to T, or panics if it is not set or cannot be converted.
//
// Strings are converted with encoding.TextUnmarshaler if T implements it (e.g. AgnosticKind), numbers are
// converted between numeric types, and slices (e.g. []any decoded from YAML) are converted element-wise.
func MustGetAttr[T any](n *Node, key string) T {
	var t T
	value, found := n.attrs[key]
	if !found {
		exceptions.Panicf("attribute %q (of type %T) not found in node %s", key, t, n)
	}
	converted, ok := convertAttr(reflect.ValueOf(value), reflect.TypeOf(t))
	if !ok {
		exceptions.Panicf("GetAttrOr/MustGetAttr[%T](%s, %q): value (%T) %#v cannot be converted to %T",
			t, n, key, value, value, t)
	}
	return converted.Interface().(T)
}

// GetAttrOr returns the attribute converted to T, or defaultValue if it's not set (or it is set to nil).
// See MustGetAttr for the conversions. It panics if the value cannot be converted.
func GetAttrOr[T any](n *Node, key string, defaultValue T) T {
	value, found := n.attrs[key]
	if !found || value == nil {
		return defaultValue
	}
	if typed, ok := value.(T); ok {
		return typed
	}
	return MustGetAttr[T](n, key)
}

func convertAttr(v reflect.Value, typeOfT reflect.Type) (reflect.Value, bool) {
	if !v.IsValid() {
		return v, false
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	ptr := reflect.New(typeOfT)
	if ptr.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			return v, false
		}
		return ptr.Elem(), true
	}
	if typeOfT.Kind() == reflect.Slice && v.Kind() == reflect.Slice && v.Type() != typeOfT {
		elemType := typeOfT.Elem()
		converted := reflect.MakeSlice(typeOfT, v.Len(), v.Len())
		for ii := range v.Len() {
			elem, ok := convertAttr(v.Index(ii), elemType)
			if !ok {
				return v, false
			}
			converted.Index(ii).Set(elem)
		}
		return converted, true
	}
	if typeOfT.Kind() == reflect.String && v.Kind() != reflect.String {
		// Avoid int -> string "rune" conversion.
		return v, false
	}
	if !v.CanConvert(typeOfT) {
		return v, false
	}
	return v.Convert(typeOfT), true
}

// IsWeight returns whether the node is a constant or a weight.
func (n *Node) IsWeight() bool {
	return n.opType == OpConst || n.opType == OpVariable || GetAttrOr(n, AttrIsWeight, false)
}

// WeightAlias returns the alias shared by copies of the same weight, or "" if not set.
func (n *Node) WeightAlias() string {
	return GetAttrOr(n, AttrWeightAlias, "")
}

// FormatAgnostic returns the declared format-agnostic kind of the node.
func (n *Node) FormatAgnostic() AgnosticKind {
	return GetAttrOr(n, AttrFormatAgnostic, AgnosticNone)
}

// IsAgnosticException returns whether the slot is excluded from the node's format-agnostic rule.
func (n *Node) IsAgnosticException(kind SlotKind, index int) bool {
	key := AttrFormatAgnosticExceptInput
	if kind == Output {
		key = AttrFormatAgnosticExceptOutput
	}
	return slices.Contains(GetAttrOr[[]int](n, key, nil), index)
}

// IsFormatContinuous returns whether the node is marked as format-continuous.
func (n *Node) IsFormatContinuous() bool {
	return GetAttrOr(n, AttrFormatContinuous, false)
}

// Groups returns the number of groups of a grouped convolution, 1 if not set.
func (n *Node) Groups() int {
	return GetAttrOr(n, AttrGroups, 1)
}

// IsCompilerInserted returns whether the node was inserted by the compiler.
func (n *Node) IsCompilerInserted() bool {
	return GetAttrOr(n, AttrCompilerInserted, false)
}

// KeepDType returns whether the node's dtypes are pinned regardless of the precision mode.
func (n *Node) KeepDType() bool {
	return GetAttrOr(n, AttrKeepDType, false)
}

// ParentNodeIndex returns the parent input index a subgraph Data node receives, or -1 if not set.
func (n *Node) ParentNodeIndex() int {
	return GetAttrOr(n, AttrParentNodeIndex, -1)
}
