package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentattest/attest-core/internal/config"
	"github.com/agentattest/attest-core/pkg/authority"
	"github.com/agentattest/attest-core/pkg/ledger"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the authority key",
}

var keyDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the authority public key for a seed",
	Long: `Derive the authority public key, ledger DID and proof key ID from a
Base58 seed. Without --seed the configured seed is used.

Derivation failures are reported instead of falling back to an ephemeral key.`,
	Example: `  agentattest key derive --seed 4zvwRjX9q...
  AGENTATTEST_AUTHORITY_SEED=4zvwRjX9q... agentattest key derive`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		seed := v.GetString(config.KeyAuthoritySeed)

		pub, err := ledger.DerivePublicKey(seed)
		if err != nil {
			return fmt.Errorf("failed to derive public key: %w", err)
		}

		mgr := authority.NewManager(seed)
		_, kid, err := mgr.SigningKey()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Public key: %s\n", pub)
		fmt.Fprintf(out, "DID:        %s\n", mgr.DID())
		fmt.Fprintf(out, "Proof kid:  %s\n", kid)
		return nil
	},
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new authority seed",
	Long: `Generate a random authority seed and print it with its public key.

Store the seed in AGENTATTEST_AUTHORITY_SEED. It is printed only once.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, err := ledger.GenerateKeypair()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Seed:       %s\n", kp.PrivateKey)
		fmt.Fprintf(out, "Public key: %s\n", kp.PublicKey)
		return nil
	},
}

func init() {
	keyDeriveCmd.Flags().String("seed", "", "Base58 authority seed")
	keyCmd.AddCommand(keyDeriveCmd)
	keyCmd.AddCommand(keyGenCmd)
	rootCmd.AddCommand(keyCmd)
}
