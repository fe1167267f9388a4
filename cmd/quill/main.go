/*
Copyright Quill Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main is the Quill federated social-network server.
package main

import (
	"github.com/spf13/cobra"

	"github.com/quillpub/quill/cmd/quill/startcmd"
	"github.com/quillpub/quill/internal/pkg/log"
)

var logger = log.New("quill")

func main() {
	rootCmd := &cobra.Command{
		Use: "quill",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run Quill server.", log.WithError(err))
	}
}
