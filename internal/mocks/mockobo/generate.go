// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package mockobo

//go:generate go run -v go.uber.org/mock/mockgen  -destination=mockobo.go -package=mockobo -copyright_file=../../../hack/header.txt go.certsso.dev/internal/obo TokenExchanger
