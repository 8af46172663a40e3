package auth

import (
	"fmt"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	sharedCrypto "github.com/felixgeelhaar/reslot/internal/shared/infrastructure/crypto"
	"github.com/spf13/cobra"
)

var keygenCmd = cli.WithoutApp(&cobra.Command{
	Use:   "keygen",
	Short: "Print a new RESLOT_ENCRYPTION_KEY for sealing stored tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := sharedCrypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "RESLOT_ENCRYPTION_KEY=%s\n", key)
		return nil
	},
})
