package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chainweave/forge/config"
	"github.com/chainweave/forge/docs"
)

// ingestCmd converts an HTML capability page (remote or local) into the
// markdown docs store that prompt assembly reads.
func ingestCmd(configPath, logLevel *string) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "ingest <url|file>",
		Short: "Convert an HTML capability doc to markdown in the docs dir",
		Long: `Ingest fetches an HTML page (or reads a local HTML file), extracts the
readable article, converts it to GitHub-flavored markdown and writes it to
<docs dir>/<key>.md where prompt assembly picks it up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*logLevel)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store := docs.NewStore(cfg.Docs.Dir, logger)
			ing := docs.NewIngester(store, logger)

			source := args[0]
			var path string
			if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
				path, err = ing.IngestURL(cmd.Context(), source, key)
			} else {
				path, err = ing.IngestFile(cmd.Context(), source, key)
			}
			if err != nil {
				return err
			}

			fmt.Println(path)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Capability key, lowercase kebab-case (becomes the file name)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}
