package main

import (
	"context"
	"fmt"
	"strconv"

	"photo-indexer/internal/integrations/detection"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List indexed images, optionally filtered by tag",
	Args:  cobra.NoArgs,
	RunE:  runImages,
}

var imagesShowCmd = &cobra.Command{
	Use:   "show <image-id>",
	Short: "Show tags and faces of an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runImagesShow,
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <image-id>",
	Short: "Remove an image with its tags and faces from the index",
	Long: `Remove an image with its tags and faces from the index. The file on disk is
left untouched and is indexed again by the next scan. Profiles are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runImagesDelete,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesShowCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)

	imagesCmd.Flags().String("tag", "", "Only list images with this tag")
	imagesCmd.Flags().Int("limit", 50, "Maximum number of images to list")
}

func runImages(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if tag := mustGetString(cmd, "tag"); tag != "" {
		matches, err := a.repo.ImagesByTag(ctx, tag)
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Printf("%d\t%s\t%s\n", m.ImageID, formatConfidence(tag, m.Confidence), m.Path)
		}
		return nil
	}

	images, total, err := a.repo.ListImages(ctx, mustGetInt(cmd, "limit"), 0)
	if err != nil {
		return err
	}
	for _, img := range images {
		fmt.Printf("%d\t%s\t%s\n", img.ID, img.ContentHash[:12], img.Path)
	}
	fmt.Printf("%d of %d images\n", len(images), total)
	return nil
}

func runImagesShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	img, err := a.repo.GetImage(context.Background(), id)
	if err != nil {
		return fmt.Errorf("image %d: %w", id, err)
	}

	fmt.Printf("Image %d\n  path: %s\n  hash: %s\n  indexed: %s\n", img.ID, img.Path, img.ContentHash, img.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println("  tags:")
	for _, t := range img.Tags {
		fmt.Printf("    %s (%s)\n", t.Label, formatConfidence(t.Label, t.Confidence))
	}
	fmt.Println("  faces:")
	for _, f := range img.Faces {
		box := f.BoundingBox.Data()
		name := fmt.Sprintf("Profile_%d", f.ProfileID)
		if f.Profile != nil {
			name = f.Profile.DisplayName()
		}
		fmt.Printf("    %s at top=%d right=%d bottom=%d left=%d\n", name, box.Top, box.Right, box.Bottom, box.Left)
	}
	return nil
}

func runImagesDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.repo.DeleteImage(context.Background(), id); err != nil {
		return fmt.Errorf("deleting image %d: %w", id, err)
	}
	fmt.Printf("Image %d deleted\n", id)
	return nil
}

// formatConfidence rundet nur für die Ausgabe, gespeichert bleibt der Rohwert
func formatConfidence(label string, confidence float64) string {
	rounded := detection.Tag{Label: label, Confidence: confidence}.Rounded()
	return strconv.FormatFloat(rounded, 'f', 2, 64)
}
