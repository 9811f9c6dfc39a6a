package client

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/tagging"
	"github.com/spf13/cobra"
)

func NewRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage, preview and execute tagging rules",
	}

	cmd.AddCommand(newRulesListCommand())
	cmd.AddCommand(newRulesCreateCommand())
	cmd.AddCommand(newRulesUpdateCommand())
	cmd.AddCommand(newRulesDeleteCommand())
	cmd.AddCommand(newRulesPreviewCommand())
	cmd.AddCommand(newRulesExecCommand())

	return cmd
}

func engine(c *catalog) *tagging.Engine {
	return tagging.NewEngine(c.store, c.log, tagging.Options{PatternCacheSize: c.cfg.Tagging.PatternCacheSize})
}

func newRulesListCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List tagging rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			rules, err := engine(c).ListRules(ctx, owner)
			if err != nil {
				return err
			}
			for _, rule := range rules {
				fmt.Printf("%s  %-8s active=%-5v auto=%-5v %-20s %s\n",
					rule.ID, rule.RuleType, rule.IsActive, rule.AutoExecute, rule.Name, rule.Pattern)
			}
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	return cmd
}

func newRulesPreviewCommand() *cobra.Command {
	var owner string
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <rule-id>",
		Short: "Show the samples a rule would match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			preview, err := engine(c).PreviewRule(ctx, owner, args[0], limit)
			if err != nil {
				return err
			}
			printSamples(int64(preview.TotalMatched), preview.Samples)
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().IntVar(&limit, "limit", 10, "number of samples to show")

	return cmd
}

func newRulesExecCommand() *cobra.Command {
	var owner string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "exec <rule-id>",
		Short: "Execute a rule against the owner's catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := engine(c).ExecuteRule(ctx, owner, args[0], dryRun)
			if err != nil {
				return err
			}
			return printYAML(stats)
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be tagged without writing")

	return cmd
}

func newRulesCreateCommand() *cobra.Command {
	var owner, ruleType string
	var in tagging.RuleInput
	var inactive bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a fixed or mapping tagging rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			in.RuleType = models.RuleType(ruleType)
			active := !inactive
			in.IsActive = &active

			rule, err := engine(c).CreateRule(ctx, owner, in)
			if err != nil {
				return err
			}
			fmt.Printf("Created rule '%s' (%s)\n", rule.Name, rule.ID)
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().StringVar(&in.Name, "name", "", "rule name")
	cmd.Flags().StringVar(&in.Description, "description", "", "rule description")
	cmd.Flags().StringVar(&ruleType, "type", string(models.RuleFixed), "rule type (fixed or mapping)")
	cmd.Flags().StringVar(&in.Pattern, "pattern", "", "regular expression matched against bucket/key")
	cmd.Flags().StringSliceVar(&in.TagIDs, "tag", nil, "tag id applied by a fixed rule (repeatable)")
	cmd.Flags().StringToStringVar(&in.ClassTagMapping, "map", nil, "class=tag-id pairs of a mapping rule")
	cmd.Flags().BoolVar(&in.AutoExecute, "auto", false, "apply the rule to new samples")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the rule disabled")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("pattern")

	return cmd
}

func newRulesUpdateCommand() *cobra.Command {
	var owner, name, description, ruleType, pattern string
	var tagIDs []string
	var mapping map[string]string
	var active, auto bool

	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Change the given fields of a tagging rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			var update tagging.RuleUpdate
			flags := cmd.Flags()
			if flags.Changed("name") {
				update.Name = &name
			}
			if flags.Changed("description") {
				update.Description = &description
			}
			if flags.Changed("type") {
				t := models.RuleType(ruleType)
				update.RuleType = &t
			}
			if flags.Changed("pattern") {
				update.Pattern = &pattern
			}
			if flags.Changed("tag") {
				update.TagIDs = &tagIDs
			}
			if flags.Changed("map") {
				update.ClassTagMapping = &mapping
			}
			if flags.Changed("active") {
				update.IsActive = &active
			}
			if flags.Changed("auto") {
				update.AutoExecute = &auto
			}

			rule, err := engine(c).UpdateRule(ctx, owner, args[0], update)
			if err != nil {
				return err
			}
			fmt.Printf("Updated rule '%s' (%s)\n", rule.Name, rule.ID)
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&description, "description", "", "rule description")
	cmd.Flags().StringVar(&ruleType, "type", "", "rule type (fixed or mapping)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "regular expression matched against bucket/key")
	cmd.Flags().StringSliceVar(&tagIDs, "tag", nil, "tag ids applied by a fixed rule; replaces the list")
	cmd.Flags().StringToStringVar(&mapping, "map", nil, "class=tag-id pairs; replaces the mapping")
	cmd.Flags().BoolVar(&active, "active", true, "enable or disable the rule")
	cmd.Flags().BoolVar(&auto, "auto", false, "apply the rule to new samples")

	return cmd
}

func newRulesDeleteCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "rm <rule-id>",
		Short: "Delete a tagging rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			return engine(c).DeleteRule(ctx, owner, args[0])
		},
	}

	ownerFlag(cmd, &owner)
	return cmd
}
