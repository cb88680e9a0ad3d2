package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kingrea/linaje/internal/config"
	"github.com/kingrea/linaje/internal/voice"
)

var validateOpts struct {
	anchors    []string
	text       string
	threshold  float64
	minMatches int
}

var validateCmd = &cobra.Command{
	Use:     "validate",
	GroupID: GroupRituals,
	Short:   "Check a spoken or typed text against voice anchors",
	Long: `Check which anchor phrases appear in a text. Matching ignores case,
accents and punctuation. Use --text - to read the text from stdin.
Exits with status 2 when the text does not pass.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(validateOpts.anchors) == 0 {
			return errors.New("at least one --anchor is required")
		}
		text := validateOpts.text
		if text == "-" {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			text = string(raw)
		}
		cfg, err := config.NewConfig(projectDir)
		if err != nil {
			return err
		}
		validator := voice.NewValidator(voice.Requirement{
			Threshold:  cfg.Project.Voice.Threshold,
			MinMatches: cfg.Project.Voice.MinMatches,
		})
		result := validator.Validate(validateOpts.anchors, text, voice.Requirement{
			Threshold:  validateOpts.threshold,
			MinMatches: validateOpts.minMatches,
		})
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			printValidation(cmd.OutOrStdout(), result)
		}
		if !result.Success {
			return &exitError{code: 2}
		}
		return nil
	},
}

func printValidation(w io.Writer, v voice.Validation) {
	label := fmt.Sprintf("%d%% (%d/%d)", v.PercentLabel(), v.Matched(), len(v.TargetAnchors))
	if v.Success {
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓"), label)
	} else {
		fmt.Fprintf(w, "%s %s, need %.0f%%\n", badStyle.Render("✗"), label, v.Threshold*100)
	}
	for _, a := range v.MatchedAnchors {
		fmt.Fprintf(w, "  %s %s\n", okStyle.Render("+"), a)
	}
	for _, a := range v.MissingPhrases {
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("-"), a)
	}
}

func init() {
	f := validateCmd.Flags()
	f.StringArrayVar(&validateOpts.anchors, "anchor", nil, "anchor phrase (repeatable)")
	f.StringVar(&validateOpts.text, "text", "", "text to check, or - for stdin")
	f.Float64Var(&validateOpts.threshold, "threshold", 0, "required share of anchors (config value when 0)")
	f.IntVar(&validateOpts.minMatches, "min-matches", 0, "minimum matched anchors")
	_ = validateCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(validateCmd)
}
