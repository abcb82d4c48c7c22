package commands

import (
	"fmt"

	"github.com/benvon/habitual/internal/config"
	"github.com/benvon/habitual/internal/services/oidc"
	"github.com/spf13/cobra"
)

func newJWKSCmd() *cobra.Command {
	var jwksURL string

	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Check that the configured JWKS endpoint serves usable keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jwksURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				jwksURL = cfg.JWKSURL
			}
			if jwksURL == "" {
				return fmt.Errorf("no JWKS URL: pass --url or set JWKS_URL")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fetching JWKS: %s\n", jwksURL)
			set, err := oidc.NewJWKSManager(0).GetJWKS(cmd.Context(), jwksURL)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				return fmt.Errorf("JWKS at %s contains no keys", jwksURL)
			}
			fmt.Fprintf(out, "✓ %d key(s)\n", set.Len())
			for i := 0; i < set.Len(); i++ {
				key, ok := set.Key(i)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "  - kid=%q alg=%q type=%s\n", key.KeyID(), key.Algorithm().String(), key.KeyType())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jwksURL, "url", "", "JWKS URL (defaults to JWKS_URL)")
	return cmd
}
