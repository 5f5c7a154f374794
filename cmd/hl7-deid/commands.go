package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/hl7deid/internal/platform/deid"
	"github.com/ehr/hl7deid/internal/platform/report"
)

func deidentifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deidentify <file>...",
		Short: "De-identify HL7v2 message files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(cmd)
			if err != nil {
				return err
			}
			msgs, err := readMessages(args)
			if err != nil {
				return err
			}
			showDiff, _ := cmd.Flags().GetBool("diff")
			outDir, _ := cmd.Flags().GetString("out")

			results, err := deid.Batch(cmd.Context(), msgs, eng.items, eng.registry, report.NewLogSink(eng.logger), eng.cfg.Workers)
			if err != nil {
				return err
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o750); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}

			w := cmd.OutOrStdout()
			failed := 0
			for _, r := range results {
				name := args[r.Index]
				if r.Err != nil {
					failed++
					eng.logger.Error().Err(r.Err).Str("file", name).Msg("de-identification failed")
					continue
				}
				switch {
				case outDir != "":
					dst := filepath.Join(outDir, filepath.Base(name))
					if err := os.WriteFile(dst, []byte(r.Message.InputString), 0o640); err != nil {
						return fmt.Errorf("write %s: %w", dst, err)
					}
					fmt.Fprintf(w, "%s -> %s\n", name, dst)
				case showDiff:
					fmt.Fprintf(w, "%s\n", name)
					writeDiff(w, msgs[r.Index].InputString, r.Message.InputString)
				default:
					fmt.Fprintln(w, strings.Join(segmentLines(r.Message.InputString), "\n"))
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d messages failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().Bool("diff", false, "show changed segments instead of the full output")
	cmd.Flags().String("out", "", "write de-identified messages into this directory")
	return cmd
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Print the fields of an HL7v2 message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, seg := range msgs[0].Segments {
				for _, f := range seg.Fields[1:] {
					if f.Value == "" {
						continue
					}
					fmt.Fprintf(w, "%-8s %-28s %s\n", f.ID, f.Name, f.Value)
				}
			}
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id> <file>...",
		Short: "Print every value addressed by a component identifier such as PID-5.1",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args[1:])
			if err != nil {
				return err
			}
			components, err := msgs.GetByID(args[0])
			if err != nil {
				return err
			}
			unescape, _ := cmd.Flags().GetBool("unescape")

			w := cmd.OutOrStdout()
			for _, c := range components {
				v := c.Value()
				if unescape {
					// All messages of one run share the first message's delimiters.
					v = c.Unescaped(msgs[0].Encoding)
				}
				fmt.Fprintln(w, v)
			}
			return nil
		},
	}
	cmd.Flags().Bool("unescape", false, "resolve HL7 escape sequences")
	return cmd
}

func scrambleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scramble <file>",
		Short: "Replace every value of a message while keeping its structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readMessages(args)
			if err != nil {
				return err
			}
			out, err := deid.GenerateFrom(msgs[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(segmentLines(out.InputString), "\n"))
			return nil
		},
	}
}

func generatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generators",
		Short: "List the registered generators, or the configured PHI fields with --fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if fields, _ := cmd.Flags().GetBool("fields"); fields {
				for _, it := range eng.items {
					switch {
					case it.Static != nil:
						fmt.Fprintf(w, "%-10s static %q\n", it.ID, *it.Static)
					case it.Generator != "":
						fmt.Fprintf(w, "%-10s %s\n", it.ID, it.Generator)
					default:
						fmt.Fprintf(w, "%-10s default\n", it.ID)
					}
				}
				return nil
			}

			for _, name := range eng.registry.Names() {
				fmt.Fprintln(w, name)
			}
			return nil
		},
	}
	cmd.Flags().Bool("fields", false, "list the configured PHI fields instead")
	return cmd
}
