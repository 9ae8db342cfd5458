// Copyright 2026 the certsso contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package bot

import "context"

type contextKey int

const userTokenContextKey contextKey = iota

// WithUserToken returns a copy of ctx carrying the delegated token that came with a message.
func WithUserToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, userTokenContextKey, token)
}

// ContextUserTokenProvider returns the token stored by WithUserToken.
type ContextUserTokenProvider struct{}

var _ UserTokenProvider = ContextUserTokenProvider{}

func (ContextUserTokenProvider) UserToken(ctx context.Context, _ Message) (string, error) {
	token, _ := ctx.Value(userTokenContextKey).(string)
	return token, nil
}
