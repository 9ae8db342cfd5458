// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package here writes indented multi-line literals, such as YAML documents, inside Go source.
package here

import (
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
)

const (
	tab       = "\t"
	twoSpaces = "  "
)

// Doc removes the common indentation of s and turns any remaining tabs into two spaces,
// since YAML does not allow tabs for indentation.
func Doc(s string) string {
	return strings.ReplaceAll(heredoc.Doc(s), tab, twoSpaces)
}

func Docf(raw string, args ...any) string {
	return strings.ReplaceAll(heredoc.Docf(raw, args...), tab, twoSpaces)
}
