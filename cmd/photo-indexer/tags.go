package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show how often each tag occurs",
	Args:  cobra.NoArgs,
	RunE:  runTags,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a summary of the index",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(statsCmd)
}

func runTags(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.repo.TagStats(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tCOUNT")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\n", s.Label, s.Count)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.repo.GetStatistics(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Images:   %d\n", s.TotalImages)
	fmt.Printf("Tags:     %d\n", s.TotalTags)
	fmt.Printf("Faces:    %d\n", s.TotalFaces)
	fmt.Printf("Profiles: %d (%d named)\n", s.ProfileCount, s.NamedProfiles)
	if !s.LatestIndexedAt.IsZero() {
		fmt.Printf("Latest:   %s\n", s.LatestIndexedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
