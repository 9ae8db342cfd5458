// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package mocksecretstore

//go:generate go run -v go.uber.org/mock/mockgen  -destination=mocksecretstore.go -package=mocksecretstore -copyright_file=../../../hack/header.txt go.certsso.dev/internal/secretstore Store
