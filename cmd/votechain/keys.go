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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/votechain/api"
	"github.com/blinklabs-io/votechain/chain"
	"github.com/blinklabs-io/votechain/keystore"
	"github.com/spf13/cobra"
)

func keygenCommand() *cobra.Command {
	var outDir, name string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a vote signing key pair",
		Long: "Generate an RSA-2048 key pair. With --out-dir the halves are " +
			"written to <name>.skey and <name>.vkey, otherwise both are " +
			"printed as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeygen(cmd.OutOrStdout(), outDir, name)
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory to write key files to")
	cmd.Flags().StringVar(&name, "name", "vote", "base name of the key files")
	return cmd
}

func runKeygen(w io.Writer, outDir string, name string) error {
	pair, err := keystore.GenerateEncodedKeyPair()
	if err != nil {
		return err
	}
	if outDir == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	}
	skey := filepath.Join(outDir, name+".skey")
	vkey := filepath.Join(outDir, name+".vkey")
	if err := keystore.WriteKeyFiles(pair, skey, vkey); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s and %s\n", skey, vkey)
	return nil
}

func signCommand() *cobra.Command {
	var signingKey, verificationKey, voterId, candidateId string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a vote and print the submission body",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSign(
				cmd.OutOrStdout(),
				signingKey,
				verificationKey,
				voterId,
				candidateId,
			)
		},
	}
	cmd.Flags().StringVar(&signingKey, "signing-key", "", "signing key file")
	cmd.Flags().StringVar(&verificationKey, "verification-key", "", "verification key file (derived from the signing key when omitted)")
	cmd.Flags().StringVar(&voterId, "voter", "", "voter id the vote is submitted as")
	cmd.Flags().StringVar(&candidateId, "candidate", "", "candidate id")
	_ = cmd.MarkFlagRequired("signing-key")
	_ = cmd.MarkFlagRequired("voter")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func runSign(
	w io.Writer,
	signingKey string,
	verificationKey string,
	voterId string,
	candidateId string,
) error {
	priv, err := keystore.LoadSigningKey(signingKey)
	if err != nil {
		return err
	}
	var pub string
	if verificationKey != "" {
		if pub, err = keystore.LoadVerificationKey(verificationKey); err != nil {
			return err
		}
	} else if pub, err = keystore.EncodePublicKey(&priv.PublicKey); err != nil {
		return err
	}
	tx := chain.NewTransaction(voterId, candidateId, pub, "")
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Signature, err = keystore.Sign(priv, tx.SignablePayload()); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(api.SubmitRequest{
		CandidateId:     tx.CandidateId,
		SenderPublicKey: tx.SenderPublicKey,
		Signature:       tx.Signature,
	})
}

func verifyCommand() *cobra.Command {
	var txFile string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the signature of a transaction read from a JSON file or stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if txFile != "" && txFile != "-" {
				f, err := os.Open(txFile)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runVerify(cmd.OutOrStdout(), in)
		},
	}
	cmd.Flags().StringVar(&txFile, "tx", "-", "transaction JSON file")
	return cmd
}

func runVerify(w io.Writer, r io.Reader) error {
	var tx chain.Transaction
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&tx); err != nil {
		return fmt.Errorf("failed to decode transaction: %w", err)
	}
	ok, err := tx.VerifySignature()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("signature is not valid")
	}
	fmt.Fprintln(w, "signature is valid")
	return nil
}
