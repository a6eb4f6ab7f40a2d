package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type fileTable []llm.FileObject

func (t fileTable) header() []string {
	return []string{"ID", "FILENAME", "BYTES", "PURPOSE", "STATUS"}
}

func (t fileTable) rows() [][]string {
	var data [][]string
	for _, f := range t {
		data = append(data, []string{f.ID, f.Filename, strconv.FormatInt(f.Bytes, 10), string(f.Purpose), f.Status})
	}
	return data
}

func newFilesCommand(f *Factory, streams IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Upload, list, inspect and delete files",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(
		newFilesUploadCommand(f, streams),
		newFilesListCommand(f, streams),
		newFilesGetCommand(f, streams),
		newFilesContentCommand(f, streams),
		newFilesDeleteCommand(f, streams),
	)
	return cmd
}

// UploadOptions are the options of the files upload command.
type UploadOptions struct {
	Purpose     string
	Insecure    bool
	Concurrency int

	sources []llm.FileSource
	factory *Factory
	IOStreams
}

func newFilesUploadCommand(f *Factory, streams IOStreams) *cobra.Command {
	o := &UploadOptions{
		Purpose:     string(llm.FilePurposeExtract),
		Concurrency: 4,
		factory:     f,
		IOStreams:   streams,
	}

	cmd := &cobra.Command{
		Use:   "upload <path|glob|url>...",
		Short: "Upload files",
		Long: `Upload local files or remote URLs. Local arguments may be doublestar
globs such as "docs/**/*.pdf"; http and https arguments are downloaded first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.Purpose, "purpose", o.Purpose, "File purpose: file-extract, retrieval-text, retrieval-image or storage.")
	cmd.Flags().BoolVar(&o.Insecure, "insecure", o.Insecure, "Skip TLS verification when downloading remote files.")
	cmd.Flags().IntVar(&o.Concurrency, "concurrency", o.Concurrency, "Maximum uploads in flight.")
	return cmd
}

// Complete expands the arguments into upload sources.
func (o *UploadOptions) Complete(args []string) error {
	sources, err := expandSources(args, o.Insecure)
	if err != nil {
		return err
	}
	o.sources = sources
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return nil
}

// expandSources turns URLs into remote sources and globs into the sorted
// local files they match. A pattern matching nothing is an error.
func expandSources(args []string, insecure bool) ([]llm.FileSource, error) {
	var sources []llm.FileSource
	for _, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			sources = append(sources, llm.RemoteFile(arg, insecure))
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("upload: pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("upload: no files match %q", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			sources = append(sources, llm.LocalFile(m))
		}
	}
	return sources, nil
}

// Run uploads the sources concurrently and prints them in argument order.
func (o *UploadOptions) Run(ctx context.Context) error {
	client, _, err := o.factory.Client()
	if err != nil {
		return err
	}

	uploaded := make([]llm.FileObject, len(o.sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i, src := range o.sources {
		g.Go(func() error {
			req, err := llm.NewFileUploadRequestBuilder().
				WithSource(src).
				WithPurpose(llm.FilePurpose(o.Purpose)).
				Build()
			if err != nil {
				return err
			}
			obj, err := client.UploadFile(ctx, req)
			if err != nil {
				name, _ := src.Name()
				return fmt.Errorf("upload %s: %w", name, err)
			}
			uploaded[i] = *obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printObject(o.Out, o.factory.Output(), uploaded, fileTable(uploaded))
}

func newFilesListCommand(f *Factory, streams IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List uploaded files",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := f.Client()
			if err != nil {
				return err
			}
			files, err := client.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			return printObject(streams.Out, f.Output(), files, fileTable(files.Data))
		},
	}
}

func newFilesGetCommand(f *Factory, streams IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := f.Client()
			if err != nil {
				return err
			}
			file, err := client.GetFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printObject(streams.Out, f.Output(), file, fileTable{*file})
		},
	}
}

func newFilesContentCommand(f *Factory, streams IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:   "content <id>",
		Short: "Print the text extracted from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := f.Client()
			if err != nil {
				return err
			}
			content, err := client.FileContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if format := f.Output(); format != outputTable && format != "" {
				return printObject(streams.Out, format, content, nil)
			}
			_, err = fmt.Fprintln(streams.Out, content.Content)
			return err
		},
	}
}

func newFilesDeleteCommand(f *Factory, streams IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := f.Client()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := client.DeleteFile(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(streams.Out, "deleted %s\n", id)
			}
			return nil
		},
	}
}
