// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAndKeys(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	values := FlagSetVar(fs, "values", []int{7}, "list of ints", strconv.Atoi)
	assert.Equal(t, []int{7}, *values)
	assert.Equal(t, "7", fs.Lookup("values").Value.String())

	require.NoError(t, fs.Parse([]string{"-values=1, 2,3"}))
	assert.Equal(t, []int{1, 2, 3}, *values)
	assert.Equal(t, "1,2,3", fs.Lookup("values").Value.String())

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	values = FlagSetVar(fs, "values", []int{7}, "list of ints", strconv.Atoi)
	fs.SetOutput(io.Discard)
	require.Error(t, fs.Parse([]string{"-values=1,x"}))
	assert.Equal(t, []int{7}, *values)
}
