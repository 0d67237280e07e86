package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/polisight/backend/pkg/source"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Analyze documents and store them in the graph",
	Long:  "Each file becomes one document whose id is the file name without its\nextension. JSON files are read as documents, HTML and docx are reduced to\ntheir text, anything else is read as plain text.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	docs := make([]source.Document, 0, len(args))
	for _, name := range args {
		content, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		id := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		doc, err := source.Decode(id, name, content)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	svc, err := openService(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, svc.Close(ctx))
	}()

	results, err := svc.ProcessDocuments(ctx, docs)
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%-24s %-10s entities=%d relationships=%d", r.DocumentID, r.Status, r.EntityCount, r.RelationshipCount)
		for stage, msg := range r.StageErrors {
			fmt.Fprintf(out, " %s=%q", stage, msg)
		}
		fmt.Fprintln(out)
	}
	return err
}
