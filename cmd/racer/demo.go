package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	racer "github.com/racer-model/racer"
	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/events"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted mutation/subscribe sequence against an in-memory DocStore",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		defer func() { _ = logger.Sync() }()

		shared := docstore.NewSharedState()
		writer := racer.New(docstore.NewMemory(shared), cfg, logger)
		reader := racer.New(docstore.NewMemory(shared), cfg, logger)

		root := writer.Root()
		other := reader.Root()

		other.On(events.All, func(e events.Event) {
			fmt.Printf("[reader] %s %s -> %v\n", e.Kind, e.Path.String(), e.Value)
		})

		id, err := root.Add("books", map[string]any{"title": "Dune", "views": 0}, nil)
		if err != nil {
			return err
		}
		fmt.Printf("added books.%s\n", id)

		if err := other.Subscribe(nil, "books."+id); err != nil {
			return err
		}

		if _, err := root.Increment("books."+id+".views", 1, nil); err != nil {
			return err
		}
		if _, err := root.Push("books."+id+".tags", "scifi", nil); err != nil {
			return err
		}

		doc, ok, err := other.Get("books." + id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reader never observed books.%s", id)
		}
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
