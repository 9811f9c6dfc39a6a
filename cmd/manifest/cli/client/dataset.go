package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwantia/manifest/pkg/dataset"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/filter"
	"github.com/mwantia/manifest/pkg/sampling"
	"github.com/spf13/cobra"
)

func NewDatasetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Preview catalog queries and build datasets",
	}

	cmd.AddCommand(newDatasetPreviewCommand())
	cmd.AddCommand(newDatasetStatsCommand())
	cmd.AddCommand(newDatasetBuildCommand())

	return cmd
}

// filterFlags binds the catalog query flags shared by the dataset commands.
type filterFlags struct {
	bucket   string
	prefix   string
	status   string
	from     string
	to       string
	classes  []string
	include  []string
	exclude  []string
	anyOf    []string
	minCount int
	maxCount int
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "restrict to a bucket")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "restrict to an object key prefix")
	cmd.Flags().StringVar(&f.status, "status", "", "annotation status (none, linked, conflict, error)")
	cmd.Flags().StringVar(&f.from, "from", "", "created on or after this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "created on or before this day (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.classes, "class", nil, "annotation class names, any of")
	cmd.Flags().StringSliceVar(&f.include, "tag", nil, "tag ids the sample must all carry")
	cmd.Flags().StringSliceVar(&f.exclude, "not-tag", nil, "tag ids the sample must not carry")
	cmd.Flags().StringArrayVar(&f.anyOf, "any", nil, "comma separated tag group; a sample matches any group carried in full (repeatable)")
	cmd.Flags().IntVar(&f.minCount, "min-objects", -1, "minimum object count")
	cmd.Flags().IntVar(&f.maxCount, "max-objects", -1, "maximum object count")
}

func (f *filterFlags) params(owner string) (filter.Params, error) {
	p := filter.Params{
		OwnerID:           owner,
		Bucket:            f.bucket,
		Prefix:            f.prefix,
		AnnotationStatus:  models.AnnotationStatus(f.status),
		AnnotationClasses: f.classes,
		TagsInclude:       f.include,
		TagsExclude:       f.exclude,
	}

	for _, group := range f.anyOf {
		p.TagFilter = append(p.TagFilter, strings.Split(group, ","))
	}
	if f.minCount >= 0 {
		p.ObjectCountMin = &f.minCount
	}
	if f.maxCount >= 0 {
		p.ObjectCountMax = &f.maxCount
	}

	for _, d := range []struct {
		raw  string
		dest **time.Time
	}{{f.from, &p.DateFrom}, {f.to, &p.DateTo}} {
		if d.raw == "" {
			continue
		}
		day, err := time.Parse(time.DateOnly, d.raw)
		if err != nil {
			return p, fmt.Errorf("invalid date '%s': %w", d.raw, err)
		}
		*d.dest = &day
	}
	return p, nil
}

func newDatasetPreviewCommand() *cobra.Command {
	var owner string
	var skip, limit int
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Count and list the samples matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params(owner)
			if err != nil {
				return err
			}

			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			preview, err := dataset.NewService(c.store, c.log).Preview(ctx, params, skip, limit)
			if err != nil {
				return err
			}
			printSamples(preview.Total, preview.Samples)
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	flags.bind(cmd)
	cmd.Flags().IntVar(&skip, "skip", 0, "number of samples to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of samples to show")

	return cmd
}

func newDatasetStatsCommand() *cobra.Command {
	var owner string
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-class object totals of the samples matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params(owner)
			if err != nil {
				return err
			}

			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := dataset.NewService(c.store, c.log).ClassStats(ctx, params)
			if err != nil {
				return err
			}
			return printYAML(stats)
		},
	}

	ownerFlag(cmd, &owner)
	flags.bind(cmd)

	return cmd
}

func newDatasetBuildCommand() *cobra.Command {
	var owner, name, description, mode string
	var count int
	var seed int64
	var targets map[string]int
	var flags filterFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a dataset from the samples matching a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := flags.params(owner)
			if err != nil {
				return err
			}

			cfg := sampling.Config{Mode: sampling.Mode(mode), ClassTargets: targets}
			if cmd.Flags().Changed("count") {
				cfg.Count = &count
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = &seed
			}

			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := dataset.NewService(c.store, c.log).Build(ctx, owner, name, description, params, cfg)
			if err != nil {
				return err
			}
			return printYAML(result)
		},
	}

	ownerFlag(cmd, &owner)
	flags.bind(cmd)
	cmd.Flags().StringVar(&name, "name", "", "dataset name")
	cmd.Flags().StringVar(&description, "description", "", "dataset description")
	cmd.Flags().StringVar(&mode, "mode", string(sampling.ModeAll), "sampling mode (all, random, class_targets)")
	cmd.Flags().IntVar(&count, "count", 0, "number of samples for random mode")
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for reproducible random sampling")
	cmd.Flags().StringToIntVar(&targets, "target", nil, "class targets for class_targets mode, e.g. person=100,car=50")

	return cmd
}
