// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package constable provides an error type which can be declared as a constant,
// so that sentinel errors cannot be reassigned and can be compared with errors.Is.
package constable

var _ error = Error("")

type Error string

func (e Error) Error() string {
	return string(e)
}
