// Copyright 2020-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	apimachineryversion "k8s.io/apimachinery/pkg/version"

	"go.certsso.dev/internal/pversion"
)

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(newVersionCommand())
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%#v\n", pversion.Get())
			return nil
		},
		Args:  cobra.NoArgs, // do not accept positional arguments for this command
		Use:   "version",
		Short: "Print the version of this certsso binary",
	}
}

type versionInfo apimachineryversion.Info // hide .String() method from plog
