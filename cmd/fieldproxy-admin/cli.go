package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r9s-ai/fieldproxy/cmd/fieldproxy-admin/tui"
	"github.com/r9s-ai/fieldproxy/internal/version"
	"github.com/r9s-ai/fieldproxy/pkg/config"
	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
	"github.com/r9s-ai/fieldproxy/pkg/rules"
	"github.com/r9s-ai/fieldproxy/pkg/selector"
)

type rootOptions struct {
	Format string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fieldproxy-admin",
		Short:         "fieldproxy admin tools",
		Long:          "Inspect selectors, filter JSON documents offline and validate fieldproxy config.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newParseCommand(opts))
	cmd.AddCommand(newFilterCommand())
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newTUICommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newParseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <selector>",
		Short: "Show how a selector parses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree := selector.Parse(args[0])
			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, map[string]any{
					"input":     args[0],
					"canonical": tree.String(),
					"empty":     tree.Empty(),
					"tree":      tree,
				})
			}
			if tree.Empty() {
				_, err := fmt.Fprintln(w, "empty selection")
				return err
			}
			if _, err := fmt.Fprintf(w, "canonical: %s\n", tree.String()); err != nil {
				return err
			}
			return writeOutline(w, tree.Fields, 0)
		},
	}
}

func writeOutline(w io.Writer, fields []*selector.Field, depth int) error {
	for _, f := range fields {
		line := f.Name
		for _, m := range f.Modifiers {
			line += "." + m.String()
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), line); err != nil {
			return err
		}
		if err := writeOutline(w, f.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

type filterFlags struct {
	file        string
	selector    string
	payloadPath string
	eachItem    bool
	indent      string
}

func newFilterCommand() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Apply a selector to a JSON document",
		Example: `  fieldproxy-admin filter -f post.json -s 'id,title{rendered}'
  curl -s https://example.com/wp-json/wp/v2/posts | fieldproxy-admin filter -s id --each-item`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := jsonutil.ValidatePath(f.payloadPath); err != nil {
				return fmt.Errorf("--payload-path: %w", err)
			}
			body, err := readInput(cmd.InOrStdin(), f.file)
			if err != nil {
				return err
			}
			out, res, err := fieldfilter.FilterJSON(body, f.selector, fieldfilter.Options{
				PayloadPath: f.payloadPath,
				EachItem:    f.eachItem,
				Indent:      f.indent,
			})
			if err != nil {
				return err
			}
			if !res.Applied {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "not filtered: reason=%s\n", res.Reason)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "-", "JSON input file (- for stdin)")
	cmd.Flags().StringVarP(&f.selector, "selector", "s", "", "field selector")
	cmd.Flags().StringVar(&f.payloadPath, "payload-path", "", "JSONPath of the payload inside the document, e.g. $.data")
	cmd.Flags().BoolVar(&f.eachItem, "each-item", false, "filter each element of a list payload")
	cmd.Flags().StringVar(&f.indent, "indent", "", "indent string for pretty output")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	file = strings.TrimSpace(file)
	if file == "" || file == "-" {
		return io.ReadAll(stdin)
	}
	// #nosec G304 -- input path comes from the operator.
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", file, err)
	}
	return b, nil
}

type validateResult struct {
	Valid     bool   `json:"valid"`
	Config    string `json:"config"`
	RulesFile string `json:"rules_file,omitempty"`
	Rules     int    `json:"rules"`
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var cfgPath, rulesPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and the filter rules file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := validateFiles(cfgPath, rulesPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, res)
			}
			if _, err := fmt.Fprintf(w, "config ok: %s\n", res.Config); err != nil {
				return err
			}
			if res.RulesFile == "" {
				_, err = fmt.Fprintln(w, "rules: none")
				return err
			}
			_, err = fmt.Fprintf(w, "rules ok: %s (%d rules)\n", res.RulesFile, res.Rules)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "fieldproxy.yaml", "config yaml path")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rules yaml path (override config filter.rules_file)")
	return cmd
}

func validateFiles(cfgPath, rulesPath string) (validateResult, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return validateResult{}, err
	}
	res := validateResult{Valid: true, Config: cfgPath}
	res.RulesFile = strings.TrimSpace(rulesPath)
	if res.RulesFile == "" {
		res.RulesFile = strings.TrimSpace(cfg.Filter.RulesFile)
	}
	if res.RulesFile == "" {
		return res, nil
	}
	reg, err := rules.LoadFile(res.RulesFile)
	if err != nil {
		return validateResult{}, fmt.Errorf("rules %q: %w", res.RulesFile, err)
	}
	res.Rules = reg.Len()
	return res, nil
}

func newTUICommand() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive selector playground over a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.file == "-" || strings.TrimSpace(f.file) == "" {
				return errors.New("tui needs a JSON file (-f); stdin is used for keyboard input")
			}
			body, err := readInput(nil, f.file)
			if err != nil {
				return err
			}
			return tui.Run(body, f.selector, fieldfilter.Options{
				PayloadPath: f.payloadPath,
				EachItem:    f.eachItem,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "JSON input file")
	cmd.Flags().StringVarP(&f.selector, "selector", "s", "", "initial selector")
	cmd.Flags().StringVar(&f.payloadPath, "payload-path", "", "JSONPath of the payload inside the document")
	cmd.Flags().BoolVar(&f.eachItem, "each-item", false, "filter each element of a list payload")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := fieldfilter.Encode(v, "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
