// Package main provides blobctl, a small command-line front end over
// a blobstore.Store for local inspection and scripting. It is not part
// of the core library; the core never imports it.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/onboardctl/blobstore"
	"github.com/onboardctl/blobstore/secret"
)

var (
	dirFlag  string
	seedFlag string
	modeFlag string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blobctl",
		Short: "Inspect and manipulate a blobstore directory",
	}
	root.PersistentFlags().StringVar(&dirFlag, "dir", ".", "blob store root directory")
	root.PersistentFlags().StringVar(&seedFlag, "seed", "", "device seed used to derive the store's keys (required)")
	root.PersistentFlags().StringVar(&modeFlag, "mode", "plain", "blob mode: plain, authenticated, or sealed")

	root.AddCommand(newWriteCmd(), newReadCmd(), newSizeCmd(), newListCmd(), newDeleteCmd())
	return root
}

func openStore() (*blobstore.Store, error) {
	if seedFlag == "" {
		return nil, fmt.Errorf("blobctl: --seed is required")
	}
	secrets, err := secret.OpenFileStore(dirFlag+"/secrets.db", []byte(seedFlag), zap.NewNop())
	if err != nil {
		return nil, err
	}
	return blobstore.New(blobstore.Config{Dir: dirFlag, Secrets: secrets})
}

func parseMode(s string) (blobstore.Mode, error) {
	switch s {
	case "plain":
		return blobstore.Plain, nil
	case "authenticated":
		return blobstore.Authenticated, nil
	case "sealed":
		return blobstore.Sealed, nil
	default:
		return 0, fmt.Errorf("blobctl: unknown mode %q (want plain, authenticated, or sealed)", s)
	}
}

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <name>",
		Short: "Write stdin as the payload for <name>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			payload, err := readAllStdin()
			if err != nil {
				return err
			}
			n, err := st.Write(args[0], mode, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes\n", n)
			return nil
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <name>",
		Short: "Read <name>'s payload to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			size, err := st.Size(args[0], mode)
			if err != nil {
				return err
			}
			buf := make([]byte, size)
			n, err := st.Read(args[0], mode, buf)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(buf[:n])
			return err
		},
	}
}

func newSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size <name>",
		Short: "Print <name>'s payload size in bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			n, err := st.Size(args[0], mode)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the names of all stored blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			names, err := st.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseMode(modeFlag)
			if err != nil {
				return err
			}
			st, err := openStore()
			if err != nil {
				return err
			}
			return st.Delete(args[0], mode)
		},
	}
}

func readAllStdin() ([]byte, error) {
	buf, err := io.ReadAll(os.Stdin)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}
