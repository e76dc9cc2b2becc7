package commands

import (
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/contract"
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Print the classifier contract",
	Long: `Print the input shape, the class order used for one-hot labels, and the
output shape of every stage of the reference convolutional model.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		ct, err := cfg.Contract()
		if err != nil {
			return err
		}
		model := contract.NewReferenceModel(ct)
		if err := ct.Check(model); err != nil {
			return err
		}

		in := ct.InputShape()
		stages := contract.ReferenceStages(ct)
		shapes, err := contract.Propagate(contract.Shape(in[:]), stages)
		if err != nil {
			return err
		}

		type stageOut struct {
			Stage  contract.Stage `yaml:"stage"`
			Output string         `yaml:"output"`
		}
		rows := make([]stageOut, len(stages))
		for i := range stages {
			rows[i] = stageOut{Stage: stages[i], Output: shapes[i].String()}
		}

		return printYAML(cmd.OutOrStdout(), map[string]any{
			"input":   contract.Shape(in[:]).String(),
			"classes": ct.Classes(),
			"stages":  rows,
		})
	},
}
