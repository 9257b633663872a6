package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/markus/pkg/markus"
	"github.com/CTAG07/markus/pkg/store"
	"github.com/CTAG07/markus/pkg/tags"
	"github.com/CTAG07/markus/pkg/templating"
)

// renderFlags are shared by the commands that parse a document.
type renderFlags struct {
	context     string
	encoding    string
	allowedTags string
	tagsDir     string
	verbose     bool
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.context, "context", "c", "", "Tag context to render in (default \"default\")")
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", markus.EncodingNone, "Encoder for literal text: none or html")
	cmd.Flags().StringVarP(&f.allowedTags, "allowed-tags", "a", "", "Comma separated tags that may be rendered; others stay literal")
	cmd.Flags().StringVarP(&f.tagsDir, "tags-dir", "t", "", "Directory of *.tag.yaml files to load")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log tag loading to stderr")
}

func (f *renderFlags) options() markus.Options {
	return markus.Options{Context: f.context, Encoding: f.encoding, AllowedTags: f.allowedTags}
}

func (f *renderFlags) logger(cmd *cobra.Command) *slog.Logger {
	if !f.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// tagManager loads the built-in tags plus the tag files of --tags-dir.
func (f *renderFlags) tagManager(cmd *cobra.Command) (*templating.TagManager, error) {
	cfg := templating.DefaultConfig()
	cfg.TagDir = f.tagsDir
	if f.tagsDir == "" {
		// Glob on a directory that cannot exist loads nothing.
		cfg.TagDir = os.DevNull
	}
	return newTagManager(&cfg, f.logger(cmd))
}

// readInput reads the file named by args, or stdin when there is none or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func renderCmd() *cobra.Command {
	var (
		flags     renderFlags
		output    string
		cachePath string
		titles    bool
	)

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render a document to HTML",
		Long: `Render a document and print the result.

The document is read from the named file, or from stdin when no file is
given. With --cache the output is stored in a SQLite database and repeated
renders of the same document are served from it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			tm, err := flags.tagManager(cmd)
			if err != nil {
				return err
			}

			var cache *store.Cache
			if cachePath != "" {
				db, err := initDB(cachePath)
				if err != nil {
					return fmt.Errorf("failed to open cache database: %w", err)
				}
				defer func() { _ = db.Close() }()
				if err = store.SetupSchema(db); err != nil {
					return fmt.Errorf("failed to set up cache schema: %w", err)
				}
				if cache, err = store.NewCache(db); err != nil {
					return fmt.Errorf("failed to create render cache: %w", err)
				}
				defer cache.Close()
			}

			opts := flags.options()
			var toc *tags.Titles
			if titles {
				toc = &tags.Titles{}
				opts.Data = map[string]any{tags.TitlesKey: toc}
			}

			rs := NewRenderService(tm, cache, NewMetrics(), flags.logger(cmd))
			res, err := rs.Render(context.Background(), text, opts)
			if err != nil {
				return err
			}
			if res.Cached {
				flags.logger(cmd).Debug("Served from render cache")
			}

			out := res.Output
			if toc != nil {
				data, err := json.MarshalIndent(struct {
					Output string       `json:"output"`
					Titles *tags.Titles `json:"titles"`
				}{out, toc}, "", "  ")
				if err != nil {
					return err
				}
				out = string(data) + "\n"
			}

			if output != "" {
				return atomic.WriteFile(output, strings.NewReader(out))
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result to this file instead of stdout")
	cmd.Flags().StringVar(&cachePath, "cache", "", "SQLite database used as render cache")
	cmd.Flags().BoolVar(&titles, "titles", false, "Print JSON holding the output and its section titles")

	return cmd
}

func treeCmd() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "tree [file]",
		Short: "Print the parsed node tree of a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			tm, err := flags.tagManager(cmd)
			if err != nil {
				return err
			}
			rs := NewRenderService(tm, nil, NewMetrics(), flags.logger(cmd))
			_, err = io.WriteString(cmd.OutOrStdout(), rs.Tree(text, flags.options()))
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

func tagsCmd() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the tags available in each context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, err := flags.tagManager(cmd)
			if err != nil {
				return err
			}
			fromFiles := make(map[string]templating.TagInfo)
			for _, info := range tm.GetTags() {
				fromFiles[info.Context+"\x00"+info.Name] = info
			}

			reg := tm.Registry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTEXT\tTAG\tSOURCE")
			for _, ctx := range reg.Contexts() {
				for _, name := range reg.Names(ctx) {
					if name == markus.RootTag || name == markus.UndefinedTag {
						continue
					}
					source := "built-in"
					if info, ok := fromFiles[ctx+"\x00"+name]; ok {
						source = info.File + " (" + info.Kind + ")"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", ctx, name, source)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&flags.tagsDir, "tags-dir", "t", "", "Directory of *.tag.yaml files to load")
	return cmd
}
