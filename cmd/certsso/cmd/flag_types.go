// Copyright 2021-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// outputFormat is how the exchange command prints its result.
// this is meant to be a valid pflag.Value implementation.
type outputFormat string

var _ pflag.Value = new(outputFormat)

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
)

func (o *outputFormat) String() string {
	if len(*o) == 0 {
		return string(outputText)
	}
	return string(*o)
}

func (o *outputFormat) Set(s string) error {
	switch f := outputFormat(strings.ToLower(s)); f {
	case outputText, outputJSON:
		*o = f
		return nil
	default:
		return fmt.Errorf("invalid output format %q, valid formats are text and json", s)
	}
}

func (o *outputFormat) Type() string {
	return "format"
}
