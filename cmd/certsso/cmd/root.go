// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the certsso command line.
package cmd

import (
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:   "certsso",
	Short: "certsso",
	Long: "certsso exchanges users' delegated tokens for Microsoft Graph tokens with the on-behalf-of flow, " +
		"authenticating the application with a certificate kept in a secret store.",
	SilenceUsage: true, // do not print usage message when commands fail
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
