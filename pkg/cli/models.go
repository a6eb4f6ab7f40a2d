package cli

import (
	"strconv"
	"strings"

	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/spf13/cobra"
)

type modelTable struct{ *llm.ModelListResponse }

func (t modelTable) header() []string { return []string{"ID", "OWNED BY", "CREATED"} }

func (t modelTable) rows() [][]string {
	var data [][]string
	for _, m := range t.Data {
		data = append(data, []string{m.ID, m.OwnedBy, strconv.FormatInt(m.Created, 10)})
	}
	return data
}

func newModelsCommand(f *Factory, streams IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:     "models [prefix]",
		Aliases: []string{"ls"},
		Short:   "List models",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := f.Client()
			if err != nil {
				return err
			}
			models, err := client.Models(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				kept := models.Data[:0]
				for _, m := range models.Data {
					if strings.HasPrefix(strings.ToLower(m.ID), strings.ToLower(args[0])) {
						kept = append(kept, m)
					}
				}
				models.Data = kept
			}
			return printObject(streams.Out, f.Output(), models, modelTable{models})
		},
	}
}
