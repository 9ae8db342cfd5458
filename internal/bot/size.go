// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"} //nolint:gochecknoglobals

// FormatFileSize renders bytes in the largest binary unit up to TB that keeps the value at least 1,
// with at most two decimals.
func FormatFileSize(bytes int64) string {
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		unit++
		size /= 1024
	}
	return strconv.FormatFloat(math.Round(size*100)/100, 'f', -1, 64) + " " + sizeUnits[unit]
}
