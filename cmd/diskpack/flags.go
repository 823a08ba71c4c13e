package main

import (
	"github.com/spf13/pflag"

	"github.com/bamsammich/diskpack/internal/units"
)

// sizeValue is a pflag.Value accepting human-readable sizes such as 100M or
// 1GiB.
type sizeValue struct {
	n *int64
}

var _ pflag.Value = sizeValue{}

func (v sizeValue) String() string {
	if v.n == nil || *v.n == 0 {
		return ""
	}
	return units.FormatBytes(*v.n)
}

func (v sizeValue) Set(s string) error {
	n, err := units.ParseSize(s)
	if err != nil {
		return err
	}
	*v.n = n
	return nil
}

func (sizeValue) Type() string { return "size" }
