package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	racer "github.com/racer-model/racer"
	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and load bundle files",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Add a sample book to a fresh model and save the resulting bundle to file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m := racer.New(docstore.NewMemory(nil), cfg, newLogger(cfg))
		root := m.Root()
		if _, err := root.Add("books", map[string]any{"title": "Dune", "views": 0}, nil); err != nil {
			return err
		}

		fs := osfs.New(".")
		return snapshot.Save(fs, args[0], m.Bundle())
	},
}

var snapshotLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load a bundle file and print its tree as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := osfs.New(".")
		b, err := snapshot.Load(fs, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(b.Tree, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotLoadCmd)
}
