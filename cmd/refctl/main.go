// Command refctl bedient die Werkverwaltung ohne HTTP-Server direkt gegen die Datenbank.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/providers"
	"refcheck/providers/registry"
	"refcheck/services"
	"refcheck/storage"
)

// Version wird beim Build per ldflags gesetzt.
var Version = "dev"

// env bündelt die Dienste, die ein Kommando braucht.
type env struct {
	cfg       *config.Config
	repo      *storage.Repository
	engine    *services.VerificationEngine
	importer  *services.ImportService
	exporter  *services.ExportService
	cards     *services.CardService
	formatter *services.CitationFormatter
	log       *zap.Logger
}

func newEnv(cfg *config.Config, repo *storage.Repository, sources []providers.Source, log *zap.Logger) *env {
	e := &env{
		cfg:       cfg,
		repo:      repo,
		engine:    services.NewVerificationEngine(cfg, repo, sources, log),
		formatter: services.NewCitationFormatter(cfg.IEEEMaxAuthors),
		log:       log,
	}
	e.importer = services.NewImportService(repo, services.NewPDFExtractor(services.NewTextNormalizer(log)), nil, log)
	e.exporter = services.NewExportService(repo, e.formatter, log)
	e.cards = services.NewCardService(repo, log)
	return e
}

// openEnv lädt Konfiguration und Datenbank aus der Umgebung.
func openEnv() (*env, error) {
	log, err := zap.NewProduction(zap.IncreaseLevel(zap.WarnLevel))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e := newEnv(cfg, storage.NewRepository(db), registry.Build(cfg, log), log)
	if pdfStore, err := storage.NewPDFStore(cfg); err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	} else if pdfStore != nil {
		e.importer.PDFs = pdfStore
	}
	return e, nil
}

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(open func() (*env, error)) *cobra.Command {
	root := &cobra.Command{
		Use:   "refctl",
		Short: "Verify, cite and score bibliographic works",
		Long: `refctl imports works from CSL-JSON or PDF files, verifies them
against external sources and renders citations and bibliographies.

Results are written as JSON to stdout unless noted otherwise.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newImportCmd(open),
		newVerifyCmd(open),
		newCiteCmd(open),
		newExportCmd(open),
		newScoreCmd(open),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
