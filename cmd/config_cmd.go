// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/lakeprep/config"
)

func init() {
	c := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, c.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			enc := yaml.NewEncoder(c.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(c.ErrOrStderr(), "configuration is not runnable: %v\n", err)
			}
			return nil
		},
	}
	addRunFlags(c)
	c.Flags().String("operation", "", "operation to run")
	rootCmd.AddCommand(c)
}
