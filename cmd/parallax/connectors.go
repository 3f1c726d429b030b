package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/catalog"
	"github.com/parallaxworks/parallax/pkg/changelog"
	"github.com/parallaxworks/parallax/pkg/ci"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
	"github.com/parallaxworks/parallax/pkg/selection"
	"github.com/parallaxworks/parallax/pkg/vcs"
)

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "Inspect and operate on the connector catalog",
}

var (
	listSupportLevels []string
	listLanguages     []string
	listQuery         string
	listWithEntries   bool
)

var connectorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog connectors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(resolvedCatalogRoot())
		if err != nil {
			return err
		}

		connectors := cat.All()
		criteria := selection.Criteria{
			SupportLevels:        listSupportLevels,
			Languages:            listLanguages,
			MetadataQuery:        listQuery,
			WithChangelogEntries: listWithEntries,
		}
		if criteria.Supplied() {
			selected, err := selection.Select(criteria, cat, nil, nil)
			if err != nil {
				return err
			}
			connectors = make([]*catalog.Connector, 0, len(selected))
			for _, s := range selected {
				connectors = append(connectors, s.Connector)
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLANGUAGE\tSUPPORT\tVERSION\tPENDING ENTRIES")
		for _, connector := range connectors {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				connector.TechnicalName,
				connector.Language,
				connector.SupportLevel,
				connector.Version,
				len(connector.ChangelogEntryFiles))
		}
		return w.Flush()
	},
}

var (
	selectNames         []string
	selectSupportLevels []string
	selectLanguages     []string
	selectModified      bool
	selectMetadataOnly  bool
	selectWithEntries   bool
	selectQuery         string
	selectRemoteSecrets bool
	selectLocalSecrets  bool
	selectDiffBase      string
)

var connectorsSelectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select connectors for a CI run",
	Long: `Select applies the supplied criteria to the catalog and prints the
matching technical names, one per line. Criteria are ANDed; supplying
none selects nothing. In a CI context a run report is uploaded to the
report bucket afterwards.`,
	Args: cobra.NoArgs,
	RunE: runConnectorsSelect,
}

func runConnectorsSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	if selectRemoteSecrets && selectLocalSecrets {
		return errors.New(errors.ErrorTypeUsage,
			"--use-remote-secrets and --use-local-secrets are mutually exclusive")
	}
	var explicitSecrets *bool
	switch {
	case selectRemoteSecrets:
		useRemote := true
		explicitSecrets = &useRemote
	case selectLocalSecrets:
		useRemote := false
		explicitSecrets = &useRemote
	}

	root := resolvedCatalogRoot()
	isLocal := os.Getenv("CI") == ""
	if err := ci.ValidateEnvironment(isLocal, root); err != nil {
		return err
	}
	useRemoteSecrets, err := ci.ResolveSecretsMode(explicitSecrets, os.Getenv(ci.EnvGSMCredentials))
	if err != nil {
		return err
	}

	cat, err := catalog.Load(root)
	if err != nil {
		return err
	}

	criteria := selection.Criteria{
		Names:                selectNames,
		SupportLevels:        selectSupportLevels,
		Languages:            selectLanguages,
		Modified:             selectModified,
		MetadataChangesOnly:  selectMetadataOnly,
		WithChangelogEntries: selectWithEntries,
		MetadataQuery:        selectQuery,
	}

	var modifiedFiles []string
	if criteria.Modified || criteria.MetadataChangesOnly {
		modifiedFiles, err = vcs.DiffNames(ctx, root, selectDiffBase)
		if err != nil {
			return err
		}
	}

	selected, err := selection.Select(criteria, cat, modifiedFiles, nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range selected {
		fmt.Fprintln(out, s.Connector.TechnicalName)
	}

	logger.Info("connector selection complete",
		zap.Int("selected", len(selected)),
		zap.Int("catalog_size", cat.Len()),
		zap.Bool("remote_secrets", useRemoteSecrets),
		zap.Duration("duration", time.Since(start)))

	if !isLocal {
		return uploadSelectionReport(ctx, root, selected, start)
	}
	return nil
}

// uploadSelectionReport records the selection outcome in the CI report
// bucket.
func uploadSelectionReport(ctx context.Context, root string, selected []selection.Selected, start time.Time) error {
	branch, err := vcs.CurrentBranch(ctx, root)
	if err != nil {
		return err
	}
	revision, err := vcs.CurrentRevision(ctx, root)
	if err != nil {
		return err
	}

	bucket := settings.Report.Bucket
	if bucket == "" {
		bucket = os.Getenv(ci.EnvReportBucket)
	}
	uploader, err := ci.NewUploader(ctx, bucket, settings.Report.Prefix)
	if err != nil {
		return err
	}
	defer uploader.Close()

	report := &ci.Report{
		Pipeline:    "connectors-select",
		GitBranch:   branch,
		GitRevision: revision,
		StartedAt:   start,
		EndedAt:     time.Now(),
		Success:     true,
	}
	for _, s := range selected {
		report.Connectors = append(report.Connectors, ci.ConnectorResult{
			TechnicalName: s.Connector.TechnicalName,
			Version:       s.Connector.Version,
			Success:       true,
		})
	}

	return uploader.Upload(ctx, report)
}

var connectorsBumpCmd = &cobra.Command{
	Use:   "bump-version <name> <type> <pr-number> <comment>",
	Short: "Bump a connector version and record the changelog",
	Long: `Bump computes the next semantic version of a connector, rewrites the
dockerImageTag in its metadata file, and inserts a dated row into the
connector's changelog document. Type is one of patch, minor or major.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, bumpType, prArg, comment := args[0], args[1], args[2], args[3]

		prNumber, err := strconv.Atoi(prArg)
		if err != nil {
			return errors.Newf(errors.ErrorTypeUsage, "pull request number %q is not numeric", prArg)
		}

		cat, err := catalog.Load(resolvedCatalogRoot())
		if err != nil {
			return err
		}
		connector, ok := cat.Get(name)
		if !ok {
			return errors.Newf(errors.ErrorTypeNotFound, "connector %s is not in the catalog", name)
		}

		result, err := changelog.ApplyBump(cat.Root(), connector, bumpType, prNumber, comment)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s -> %s\n", result.TechnicalName, result.OldVersion, result.NewVersion)
		if !result.DocUpdated {
			fmt.Fprintln(out, "no changelog document found; metadata updated only")
		}
		return nil
	},
}

func init() {
	connectorsListCmd.Flags().StringSliceVar(&listSupportLevels, "support-level", nil,
		"filter by support level (certified, community, archived)")
	connectorsListCmd.Flags().StringSliceVar(&listLanguages, "language", nil,
		"filter by connector language")
	connectorsListCmd.Flags().StringVar(&listQuery, "metadata-query", "",
		"filter by a metadata expression, e.g. \"data.ab_internal.ql >= 200\"")
	connectorsListCmd.Flags().BoolVar(&listWithEntries, "with-changelog-entries", false,
		"only connectors with pending changelog entry files")

	connectorsSelectCmd.Flags().StringArrayVar(&selectNames, "name", nil,
		"select by technical name (repeatable)")
	connectorsSelectCmd.Flags().StringSliceVar(&selectSupportLevels, "support-level", nil,
		"select by support level")
	connectorsSelectCmd.Flags().StringSliceVar(&selectLanguages, "language", nil,
		"select by connector language")
	connectorsSelectCmd.Flags().BoolVar(&selectModified, "modified", false,
		"select connectors with files changed against the diff base")
	connectorsSelectCmd.Flags().BoolVar(&selectMetadataOnly, "metadata-changes-only", false,
		"restrict to connectors whose metadata file changed (implies --modified)")
	connectorsSelectCmd.Flags().BoolVar(&selectWithEntries, "with-changelog-entries", false,
		"select connectors with pending changelog entry files")
	connectorsSelectCmd.Flags().StringVar(&selectQuery, "metadata-query", "",
		"select by a metadata expression")
	connectorsSelectCmd.Flags().BoolVar(&selectRemoteSecrets, "use-remote-secrets", false,
		"fetch connector secrets from the remote secret manager")
	connectorsSelectCmd.Flags().BoolVar(&selectLocalSecrets, "use-local-secrets", false,
		"use local connector secrets")
	connectorsSelectCmd.Flags().StringVar(&selectDiffBase, "diff-base", "master",
		"git ref the modified criterion diffs against")

	connectorsCmd.AddCommand(connectorsListCmd)
	connectorsCmd.AddCommand(connectorsSelectCmd)
	connectorsCmd.AddCommand(connectorsBumpCmd)
	rootCmd.AddCommand(connectorsCmd)
}
