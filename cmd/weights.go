package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/scoring"
)

var weightsTenant string

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Inspect and validate scoring configuration",
}

var weightsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a scoring configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scoring.LoadConfig(args[0])
		if err != nil {
			return err
		}
		for _, fw := range model.Frameworks {
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d factors, sum %d\n", fw, len(sc.Weights[fw]), scoring.WeightSum(sc.Weights[fw]))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "thresholds     hot>=%d warm>=%d\n", sc.Thresholds.Hot, sc.Thresholds.Warm)
		return nil
	},
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective scoring configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		defaults := scoring.DefaultConfig()
		if cfg.Scoring.File != "" {
			var err error
			if defaults, err = scoring.LoadConfig(cfg.Scoring.File); err != nil {
				return err
			}
		}

		sc := defaults
		if weightsTenant != "" {
			if err := cfg.Validate("migrate"); err != nil {
				return err
			}
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			configs, err := scoring.NewConfigStore(st, defaults, 0, 0)
			if err != nil {
				return err
			}
			if sc, err = configs.Get(ctx, weightsTenant); err != nil {
				return err
			}
		}

		out := struct {
			Scoring scoring.Config `yaml:"scoring"`
		}{Scoring: sc}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "weights: encode config")
		}
		return enc.Close()
	},
}

func init() {
	weightsShowCmd.Flags().StringVar(&weightsTenant, "tenant", "", "show the stored config of this tenant instead of the defaults")
	weightsCmd.AddCommand(weightsValidateCmd, weightsShowCmd)
	rootCmd.AddCommand(weightsCmd)
}
