// Copyright 2024-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package plog

import (
	"net/url"

	"k8s.io/apimachinery/pkg/util/sets"
)

// SanitizeParams can be used to redact all params not included in the allowedKeys set.
// Useful when logging the form body of a token endpoint request.
func SanitizeParams(params url.Values, allowedKeys sets.Set[string]) string {
	if len(params) == 0 {
		return ""
	}
	sanitized := url.Values{}
	for key := range params {
		if allowedKeys.Has(key) {
			sanitized[key] = params[key]
		} else {
			for range params[key] {
				sanitized.Add(key, "redacted")
			}
		}
	}
	return sanitized.Encode()
}
