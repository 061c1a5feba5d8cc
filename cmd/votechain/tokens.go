// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/blinklabs-io/votechain/auth"
	"github.com/blinklabs-io/votechain/internal/sops"
	"github.com/spf13/cobra"
)

func tokensCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage the static API token file",
	}
	cmd.AddCommand(tokensEncryptCommand())
	cmd.AddCommand(tokensCheckCommand())
	return cmd
}

func tokensEncryptCommand() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt a token file with SOPS using the configured KMS keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			// Refuse to encrypt something that would not load afterwards
			if _, err := auth.ParseStaticTokens(data); err != nil {
				return err
			}
			out, err := sops.Encrypt(data, sops.FormatYAML)
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			return os.WriteFile(outFile, out, 0o600)
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	return cmd
}

func tokensCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Load a token file, decrypting it if needed, and report the token count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokensCheck(cmd.OutOrStdout(), args[0])
		},
	}
}

func runTokensCheck(w io.Writer, path string) error {
	tokens, err := auth.LoadStaticTokens(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d tokens loaded\n", tokens.Len())
	return nil
}
