// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package mockcredcache

//go:generate go run -v go.uber.org/mock/mockgen  -destination=mockcredcache.go -package=mockcredcache -copyright_file=../../../hack/header.txt go.certsso.dev/internal/credcache Getter
