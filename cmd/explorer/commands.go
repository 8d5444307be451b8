package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jun/gophdrive/explorer/internal/browser"
	"github.com/jun/gophdrive/explorer/internal/model"
	"github.com/jun/gophdrive/explorer/internal/prefs"
)

// target turns an argument into an item id. Arguments starting with "/" are
// paths from the root.
func target(ctx context.Context, c *browser.Controller, arg string) (string, error) {
	switch {
	case arg == "" || arg == "/":
		return model.RootID, nil
	case strings.HasPrefix(arg, "/"):
		item, err := c.ResolveByPath(ctx, model.RootID, arg)
		if err != nil {
			return "", err
		}
		return item.ID, nil
	}
	return arg, nil
}

// loadTarget resolves arg and loads it, so notices can name the item.
func loadTarget(ctx context.Context, c *browser.Controller, arg string) (string, error) {
	id, err := target(ctx, c, arg)
	if err != nil {
		return "", err
	}
	if _, err := c.LoadItem(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (a *cli) newLsCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "ls [item]",
		Short: "List the children of an item (default: the root)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			if _, err := loadTarget(ctx, c, arg); err != nil {
				return err
			}
			state := c.State()
			out := cmd.OutOrStdout()

			if raw {
				fmt.Fprintln(out, state.Diagnostic)
				return nil
			}
			fmt.Fprintln(out, state.Breadcrumb)
			if state.Focus == browser.FocusEmpty {
				fmt.Fprintln(out, state.EmptyMessage)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, child := range state.Children {
				kind, size := "-", fmt.Sprint(child.Size)
				if child.IsFolder() {
					kind, size = "d", fmt.Sprint(child.Folder.ChildCount)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kind, size, child.Name, child.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw response instead of the listing")
	return cmd
}

func (a *cli) newResolveCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Print the id of the item at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.controller(cmd)
			defer c.Close()

			item, err := c.ResolveByPath(cmd.Context(), from, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.ID, item.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", model.RootID, "id of the item the path is relative to")
	return cmd
}

func (a *cli) newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			parentID, err := target(ctx, c, args[0])
			if err != nil {
				return err
			}
			_, err = c.CreateFolder(ctx, parentID, args[1])
			return err
		},
	}
}

func (a *cli) newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <item> <new-name>",
		Short: "Rename an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			id, err := loadTarget(ctx, c, args[0])
			if err != nil {
				return err
			}
			_, err = c.RenameItem(ctx, id, args[1])
			return err
		},
	}
}

func (a *cli) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item>",
		Short: "Delete an item and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			id, err := loadTarget(ctx, c, args[0])
			if err != nil {
				return err
			}
			return c.DeleteItem(ctx, id)
		},
	}
}

func (a *cli) newUploadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <parent> <file>",
		Short: "Upload a local file; an existing item with the same name is an error",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[1])
			}
			parentID, err := target(ctx, c, args[0])
			if err != nil {
				return err
			}
			_, err = c.UploadContent(ctx, parentID, name, content).Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the uploaded item (default: the file's base name)")
	return cmd
}

func (a *cli) newLinkCmd() *cobra.Command {
	var linkType string
	cmd := &cobra.Command{
		Use:   "link <item>",
		Short: "Create a sharing link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			id, err := target(ctx, c, args[0])
			if err != nil {
				return err
			}
			_, err = c.CreateSharingLink(ctx, id, model.LinkType(linkType))
			return err
		},
	}
	cmd.Flags().StringVar(&linkType, "type", string(model.LinkView), "link type: view or edit")
	return cmd
}

func (a *cli) newCopyDestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy-dest [folder]",
		Short: "Show or set the folder used as copy destination",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			if len(args) == 0 {
				id, err := c.CopyDestination(ctx)
				if errors.Is(err, prefs.ErrNotSet) {
					fmt.Fprintln(cmd.OutOrStdout(), "No copy destination set.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			id, err := target(ctx, c, args[0])
			if err != nil {
				return err
			}
			folder, err := c.LoadItem(ctx, id)
			if err != nil {
				return err
			}
			return c.SetCopyDestination(ctx, folder)
		},
	}
}

func (a *cli) newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <file>",
		Short: "Print the download URL of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.controller(cmd)
			defer c.Close()

			id, err := target(ctx, c, args[0])
			if err != nil {
				return err
			}
			url, err := c.Download(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
