package client

import (
	"context"
	"fmt"

	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/reconcile"
	"github.com/mwantia/manifest/pkg/storage"
	"github.com/spf13/cobra"
)

func NewSampleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Inspect and reprocess catalogued samples",
	}

	cmd.AddCommand(newSampleShowCommand())
	cmd.AddCommand(newSampleReprocessCommand())

	return cmd
}

// ownedSample loads id and hides samples of other owners.
func ownedSample(ctx context.Context, c *catalog, owner, id string) (*models.Sample, error) {
	sample, err := c.store.GetSample(ctx, id)
	if err != nil {
		return nil, err
	}
	if sample.OwnerID != owner {
		return nil, errdefs.NotFound("sample %s", id)
	}
	return sample, nil
}

func newSampleShowCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "show <sample-id>",
		Short: "Show a sample with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			sample, err := ownedSample(ctx, c, owner, args[0])
			if err != nil {
				return err
			}
			history, err := c.store.ListHistory(ctx, sample.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s\n", sample.ID, sample.FullPath())
			fmt.Printf("  status:     %s\n", sample.Status)
			fmt.Printf("  annotation: %s %s\n", sample.AnnotationStatus, sample.AnnotationKey)
			for _, entry := range history {
				fmt.Printf("  %s  %-22s %v\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Action, entry.Details)
			}
			return nil
		},
	}

	ownerFlag(cmd, &owner)
	return cmd
}

func newSampleReprocessCommand() *cobra.Command {
	var owner, key string

	cmd := &cobra.Command{
		Use:   "reprocess <sample-id>",
		Short: "Drop a sample's annotation and link it again",
		Long: `Drops the current annotation of a sample, resets it and links it again,
either to --annotation or to the first annotation file sharing its stem.
This is the way out of the conflict and error states.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			sample, err := ownedSample(ctx, c, owner, args[0])
			if err != nil {
				return err
			}
			objects, err := c.objectStore(ctx, sample.StorageInstanceID)
			if err != nil {
				return err
			}

			r := reconcile.New(c.store, c.log, reconcile.WithHooks(engine(c)))
			r.Register(sample.StorageInstanceID, objects)

			result, err := r.Reprocess(ctx, sample.ID, key)
			if err != nil {
				return err
			}
			return printYAML(result)
		},
	}

	ownerFlag(cmd, &owner)
	cmd.Flags().StringVar(&key, "annotation", "", "annotation key to link instead of matching by stem")

	return cmd
}

// objectStore connects to the configured MinIO instance behind instanceID.
func (c *catalog) objectStore(ctx context.Context, instanceID string) (storage.ObjectStore, error) {
	instance, err := c.store.GetStorageInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	for _, inst := range c.cfg.Storage.Instances {
		if inst.Name == instance.Name {
			objects, err := storage.NewMinioStore(storage.MinioConfig{
				Endpoint:  inst.Endpoint,
				AccessKey: inst.AccessKey,
				SecretKey: inst.SecretKey,
				Secure:    inst.Secure,
			})
			if err != nil {
				return nil, err
			}
			return objects, nil
		}
	}
	return nil, errdefs.NotFound("storage instance '%s' in configuration", instance.Name)
}
