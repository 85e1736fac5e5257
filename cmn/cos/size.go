// Package cos provides common low-level types and utilities for all blazingsql exchange packages.
/*
 * Copyright (c) 2022-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// IEC (binary) units
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

const (
	SizeofI16 = 2
	SizeofI32 = 4
	SizeofI64 = 8
)

// is used in cmn/config (compare w/ duration.go)

type SizeIEC int64

func (siz SizeIEC) MarshalJSON() ([]byte, error) { return jsoniter.Marshal(siz.String()) }
func (siz SizeIEC) MarshalYAML() (any, error)    { return siz.String(), nil }
func (siz SizeIEC) String() string               { return ToSizeIEC(int64(siz), 0) }

func (siz *SizeIEC) UnmarshalJSON(b []byte) error {
	var val string
	if err := jsoniter.Unmarshal(b, &val); err != nil {
		// plain number
		var n int64
		if err := jsoniter.Unmarshal(b, &n); err != nil {
			return err
		}
		*siz = SizeIEC(n)
		return nil
	}
	n, err := ParseSize(val)
	*siz = SizeIEC(n)
	return err
}

func (siz *SizeIEC) UnmarshalYAML(node *yaml.Node) error {
	n, err := ParseSize(node.Value)
	*siz = SizeIEC(n)
	return err
}

func ToSizeIEC(b int64, digits int) string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.*f%s", digits, float32(b)/float32(TiB), "TiB")
	case b >= GiB:
		return fmt.Sprintf("%.*f%s", digits, float32(b)/float32(GiB), "GiB")
	case b >= MiB:
		return fmt.Sprintf("%.*f%s", digits, float32(b)/float32(MiB), "MiB")
	case b >= KiB:
		return fmt.Sprintf("%.*f%s", digits, float32(b)/float32(KiB), "KiB")
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// ParseSize accepts plain numbers and IEC suffixes ("4KiB", "64MiB", "1G").
func ParseSize(size string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(size))
	if s == "" {
		return 0, nil
	}
	var mult int64 = 1
	for _, u := range []struct {
		sfx  string
		mult int64
	}{
		{"TIB", TiB}, {"GIB", GiB}, {"MIB", MiB}, {"KIB", KiB},
		{"T", TiB}, {"G", GiB}, {"M", MiB}, {"K", KiB}, {"B", 1},
	} {
		if strings.HasSuffix(s, u.sfx) {
			s, mult = strings.TrimSpace(s[:len(s)-len(u.sfx)]), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %v", size, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", size)
	}
	return n * mult, nil
}
