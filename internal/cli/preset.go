package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s22625/nexusflow/internal/model"
)

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Work with run presets",
	}
	cmd.AddCommand(newPresetDumpCmd())
	return cmd
}

func newPresetDumpCmd() *cobra.Command {
	opts := &formOptions{}
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective run parameters as a preset",
		Long: `Resolve the run parameters exactly as start would (preset file, then
form flags, then form defaults) and print them as a preset blob.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetDump(opts, format, output)
		},
	}
	opts.bind(cmd.Flags())
	cmd.Flags().StringVar(&format, "format", "", "Output format (json|yaml|toml); defaults to the output file's extension, else json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

func runPresetDump(opts *formOptions, format, output string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	form, _, err := opts.resolve(cfg)
	if err != nil {
		return err
	}

	pf := model.PresetJSON
	switch {
	case format != "":
		pf, err = model.ParsePresetFormat(format)
		if err != nil {
			return err
		}
	case output != "":
		pf = model.PresetFormatForPath(output)
	}

	data, err := model.EncodePreset(form, pf)
	if err != nil {
		return err
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	if !globalOpts.Quiet {
		fmt.Printf("wrote %s\n", output)
	}
	return nil
}
