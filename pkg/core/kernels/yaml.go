// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	_ "embed"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Catalogue is the serialized form of a Registry.
//
// Example:
//
//	kernels:
//	  - op: Relu
//	    inputs:
//	      - name: x
//	        supports: [{format: NC1HWC0, dtype: float16}, {format: ND, dtype: float32}]
//	    outputs:
//	      - name: y
//	        supports: [{format: NC1HWC0, dtype: float16}, {format: ND, dtype: float32}]
type Catalogue struct {
	Kernels []OpKernel `yaml:"kernels"`
}

// LoadYAMLFile loads a kernel catalogue from a YAML (or JSON) file.
func LoadYAMLFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening kernel catalogue %q", path)
	}
	defer func() { _ = f.Close() }()
	r, err := LoadYAML(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading kernel catalogue %q", path)
	}
	return r, nil
}

// LoadYAML loads a kernel catalogue, see Catalogue.
func LoadYAML(reader io.Reader) (*Registry, error) {
	var catalogue Catalogue
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalogue); err != nil {
		return nil, errors.Wrap(err, "decoding kernel catalogue")
	}
	r := NewRegistry()
	for _, op := range catalogue.Kernels {
		if _, found := r.Op(op.OpType); found {
			return nil, errors.Errorf("kernel %q declared twice", op.OpType)
		}
		if err := r.Register(op); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Catalogue returns the serializable form of the Registry, sorted by operator type.
func (r *Registry) Catalogue() *Catalogue {
	catalogue := &Catalogue{}
	for _, opType := range r.OpTypes() {
		catalogue.Kernels = append(catalogue.Kernels, *r.ops[opType])
	}
	return catalogue
}

// Dump writes the Registry as a YAML catalogue.
func (r *Registry) Dump(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(r.Catalogue()); err != nil {
		return errors.Wrap(err, "encoding kernel catalogue")
	}
	return errors.Wrap(encoder.Close(), "flushing kernel catalogue")
}

//go:embed default.yaml
var defaultCatalogue string

// Default returns a new Registry with the built-in catalogue: convolutions, matrix multiplications,
// element-wise operators, pooling, casts and the Load/Store data movers.
//
// Each call returns a fresh copy, which the caller may extend with Register.
func Default() *Registry {
	r, err := LoadYAML(strings.NewReader(defaultCatalogue))
	if err != nil {
		panic(errors.WithMessage(err, "built-in kernel catalogue"))
	}
	return r
}
