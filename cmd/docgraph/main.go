// Package main is the entry point for the docgraph CLI: a provenance-
// tracked document-understanding knowledge graph engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/docgraph/internal/collab"
	"github.com/normanking/docgraph/internal/config"
	"github.com/normanking/docgraph/internal/engine"
	"github.com/normanking/docgraph/internal/store"
	"github.com/normanking/docgraph/pkg/types"
)

var (
	version  = "0.1.0"
	cfgPath  string
	verbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docgraph",
		Short: "Provenance-tracked document-understanding knowledge graph engine",
		Long: `docgraph consolidates typed entities extracted from a document corpus
into a cross-document knowledge graph: build_graph resolves and links entities,
query_graph/node_details/find_paths traverse the result, and incremental_add/
incremental_remove/delete_document keep it current as the corpus changes.`,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.docgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		versionCmd(),
		buildGraphCmd(),
		queryGraphCmd(),
		nodeDetailsCmd(),
		findPathsCmd(),
		graphStatsCmd(),
		deleteGraphCmd(),
		classifyRelationshipsCmd(),
		incrementalAddCmd(),
		incrementalRemoveCmd(),
		deleteDocumentCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// loadConfig resolves --config, defaulting to ~/.docgraph/config.yaml.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

// initEngine wires config -> store -> Engine. The returned cleanup closes
// the store and must run before the process exits.
func initEngine() (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	s, err := store.NewDBWithOptions(cfg.Store.DataDir, store.Options{BusyTimeoutMs: cfg.Store.BusyTimeoutMs})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	var generator collab.Generator
	if cfg.Generator.APIKey != "" {
		generator = collab.NewAnthropicGenerator(cfg.Generator.APIKey, cfg.Generator.Model, cfg.Generator.MaxRetries)
	}

	eng := engine.New(s, cfg, generator)
	cleanup := func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing store on shutdown")
		}
	}
	return eng, cleanup, nil
}

// printEnvelope renders a types.Envelope as indented JSON to stdout, and
// returns a non-nil error (so cobra sets a non-zero exit code) when the
// envelope itself reports failure.
func printEnvelope(env types.Envelope) error {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	if !env.Success {
		return fmt.Errorf("operation failed: %s", env.Error.Message)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docgraph v%s\n", version)
		},
	}
}

func buildGraphCmd() *cobra.Command {
	var documentIDs []string
	var mode string
	var classify bool
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "build-graph",
		Short: "Resolve entities across a document set and build the co-occurrence graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.BuildGraph(context.Background(), engine.BuildGraphInput{
				DocumentIDs:           documentIDs,
				ResolutionMode:        mode,
				ClassifyRelationships: classify,
				Rebuild:               rebuild,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().StringSliceVar(&documentIDs, "document", nil, "document id to include (repeatable); default is every complete document")
	cmd.Flags().StringVar(&mode, "mode", "", "resolution mode: exact, fuzzy, or ai (default from config)")
	cmd.Flags().BoolVar(&classify, "classify", false, "run relationship classification after building edges")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "wipe the existing graph before building")
	return cmd
}

func queryGraphCmd() *cobra.Command {
	var name, entityType, documentID string
	var minDocCount, maxDepth, limit int

	cmd := &cobra.Command{
		Use:   "query-graph",
		Short: "List nodes matching a filter, optionally expanding their neighborhood",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.QueryGraph(context.Background(), engine.QueryGraphInput{
				EntityName:       name,
				EntityType:       entityType,
				DocumentID:       documentID,
				MinDocumentCount: minDocCount,
				MaxDepth:         maxDepth,
				Limit:            limit,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "entity name to search for")
	cmd.Flags().StringVar(&entityType, "type", "", "entity type filter (person, organization, ...)")
	cmd.Flags().StringVar(&documentID, "document", "", "require membership in this document")
	cmd.Flags().IntVar(&minDocCount, "min-document-count", 0, "minimum document_count")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "expand the neighborhood up to this depth (0 disables expansion)")
	cmd.Flags().IntVar(&limit, "limit", 0, "result cap (default/max 200)")
	return cmd
}

func nodeDetailsCmd() *cobra.Command {
	var includeMentions, includeProvenance bool

	cmd := &cobra.Command{
		Use:   "node-details <node-id>",
		Short: "Show a node's members, incident edges, and optionally its provenance chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.NodeDetails(context.Background(), engine.NodeDetailsInput{
				NodeID:            args[0],
				IncludeMentions:   includeMentions,
				IncludeProvenance: includeProvenance,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().BoolVar(&includeMentions, "include-mentions", false, "include the entities resolved onto this node")
	cmd.Flags().BoolVar(&includeProvenance, "include-provenance", false, "include the full provenance chain")
	return cmd
}

func findPathsCmd() *cobra.Command {
	var maxHops int
	var relationshipFilter []string
	var includeEvidence bool

	cmd := &cobra.Command{
		Use:   "find-paths <source> <target>",
		Short: "Enumerate every simple path between two nodes (by id or name)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.FindPaths(context.Background(), engine.FindPathsInput{
				SourceEntity:       args[0],
				TargetEntity:       args[1],
				MaxHops:            maxHops,
				RelationshipFilter: relationshipFilter,
				IncludeEvidence:    includeEvidence,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().IntVar(&maxHops, "max-hops", 6, "maximum path length (capped at 6)")
	cmd.Flags().StringSliceVar(&relationshipFilter, "relationship", nil, "only traverse edges of this relationship type (repeatable)")
	cmd.Flags().BoolVar(&includeEvidence, "include-evidence", false, "attach evidence chunk excerpts to each path edge")
	return cmd
}

func graphStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph-stats",
		Short: "Report node/edge population counts broken down by type",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			return printEnvelope(eng.GraphStats(context.Background()))
		},
	}
}

func deleteGraphCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "delete-graph",
		Short: "Wipe every node, edge, and resolution link (documents are untouched)",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.DeleteGraph(context.Background(), engine.DeleteGraphInput{Confirm: confirm})
			return printEnvelope(env)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required: acknowledges this permanently discards the current graph")
	return cmd
}

func classifyRelationshipsCmd() *cobra.Command {
	var edgeIDs []string
	var limit, batchSize int

	cmd := &cobra.Command{
		Use:   "classify-relationships",
		Short: "Upgrade co_mentioned/co_located edges to semantic relationship types",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.ClassifyRelationships(context.Background(), engine.ClassifyRelationshipsInput{
				EdgeIDs:   edgeIDs,
				Limit:     limit,
				BatchSize: batchSize,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().StringSliceVar(&edgeIDs, "edge", nil, "edge id (repeatable); accepted but has no effect: every eligible edge is swept")
	cmd.Flags().IntVar(&limit, "limit", 0, "accepted but has no effect: the classifier applies its own per-run edge cap")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "accepted but has no effect: the classifier uses its own batch size")
	return cmd
}

func incrementalAddCmd() *cobra.Command {
	var mode, rootProvenanceID string
	var force bool

	cmd := &cobra.Command{
		Use:   "incremental-add <document-id>",
		Short: "Fold one already-processed document into an existing graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.IncrementalAdd(context.Background(), engine.IncrementalAddInput{
				DocumentID:       args[0],
				ResolutionMode:   mode,
				RootProvenanceID: rootProvenanceID,
				Force:            force,
			})
			return printEnvelope(env)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "resolution mode: exact, fuzzy, or ai (default from config)")
	cmd.Flags().StringVar(&rootProvenanceID, "root-provenance-id", "", "the existing graph's KNOWLEDGE_GRAPH provenance record id (required)")
	cmd.Flags().BoolVar(&force, "force", false, "accepted but has no effect on incremental-add")
	return cmd
}

func incrementalRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incremental-remove <document-id>",
		Short: "Strip one document's contribution from the graph without deleting its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.IncrementalRemove(context.Background(), engine.IncrementalRemoveInput{DocumentID: args[0]})
			return printEnvelope(env)
		},
	}
}

func deleteDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-document <document-id>",
		Short: "Cascade-delete a document and every row derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := initEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			env := eng.DeleteDocument(context.Background(), engine.DeleteDocumentInput{DocumentID: args[0]})
			return printEnvelope(env)
		},
	}
}
