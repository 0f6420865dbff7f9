package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List face profiles with their detection counts",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

var profilesRenameCmd = &cobra.Command{
	Use:   "rename <profile-id> <name>",
	Short: "Give a profile a human readable name",
	Args:  cobra.ExactArgs(2),
	RunE:  runProfilesRename,
}

var profilesImagesCmd = &cobra.Command{
	Use:   "images <profile-id>",
	Short: "List the images a profile was detected in",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfilesImages,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesRenameCmd)
	profilesCmd.AddCommand(profilesImagesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	roster, err := a.repo.ProfilesWithCounts(context.Background())
	if err != nil {
		return err
	}
	if len(roster) == 0 {
		fmt.Println("No profiles yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDETECTIONS")
	for _, p := range roster {
		fmt.Fprintf(w, "%d\t%s\t%d\n", p.ID, p.DisplayName, p.DetectionCount)
	}
	return w.Flush()
}

func runProfilesRename(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.repo.RenameProfile(context.Background(), id, args[1]); err != nil {
		return fmt.Errorf("renaming profile %d: %w", id, err)
	}
	fmt.Printf("Profile %d renamed to %s\n", id, args[1])
	return nil
}

func runProfilesImages(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.repo.ImagesByProfile(context.Background(), id)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Printf("%d\t%s\n", m.ImageID, m.Path)
	}
	return nil
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
