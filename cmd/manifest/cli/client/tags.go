package client

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/pkg/tags"
	"github.com/spf13/cobra"
)

func NewTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Inspect tag trees",
	}

	cmd.AddCommand(newTagsTreeCommand())
	cmd.AddCommand(newTagsSearchCommand())

	return cmd
}

func newTagsTreeCommand() *cobra.Command {
	var owner string
	var business bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the user or business tag tree with sample counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			svc := tags.NewService(c.store, c.log)

			var tree *tags.Tree
			if business {
				tree, err = svc.BusinessTree(ctx, owner)
			} else {
				tree, err = svc.UserTree(ctx, owner)
			}
			if err != nil {
				return err
			}

			tree.Walk(func(depth int, node *tags.Node) {
				fmt.Printf("%*s%s (%d/%d)\n", depth*2, "", node.Tag.Name, node.Count, node.TotalCount)
			})
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().BoolVar(&business, "business", false, "show the business taxonomy instead of user tags")

	return cmd
}

func newTagsSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search business tags by name, path or code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			found, err := tags.NewService(c.store, c.log).Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, tag := range found {
				fmt.Printf("%-12s %s\n", tag.BusinessCode, tag.FullPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")

	return cmd
}
