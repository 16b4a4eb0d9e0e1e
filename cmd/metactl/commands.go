package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"metastore/internal/record"
	"metastore/pkg/meta"
)

const annotationNoTable = "metactl/no-table"

func (a *app) createCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record with absent metadata and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				h   *record.Handle
				err error
			)
			if id != "" {
				h, err = a.table.CreateWithID(cmd.Context(), id)
			} else {
				h, err = a.table.Create(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(h.ID())
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "explicit record id (default: generated uuid)")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all record ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := a.table.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(ids)
		},
	}
}

func (a *app) allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Print the whole metadata document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			doc, err := s.All(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(doc)
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var def string
	cmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Print the value at PATH, or the default when absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback, err := parseJSON(def)
			if err != nil {
				return fmt.Errorf("--default: %w", err)
			}
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			v, err := s.Get(cmd.Context(), args[0], fallback)
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	cmd.Flags().StringVar(&def, "default", "null", "JSON value printed when PATH does not resolve")
	return cmd
}

func (a *app) hasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "has PATH...",
		Short: "Print whether every PATH exists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			ok, err := s.Has(cmd.Context(), args...)
			if err != nil {
				return err
			}
			return a.print(ok)
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set PATH JSON",
		Short: "Write a JSON value at PATH",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseJSON(args[1])
			if err != nil {
				return err
			}
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			if err := s.Set(cmd.Context(), args[0], v); err != nil {
				return err
			}
			return a.printAll(cmd, s)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete PATH...",
		Short: "Remove every PATH that exists",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			if err := s.Delete(cmd.Context(), args...); err != nil {
				return err
			}
			return a.printAll(cmd, s)
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update JSON",
		Short: "Shallow-merge a JSON object into the top level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseObject(args[0])
			if err != nil {
				return err
			}
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			if err := s.Update(cmd.Context(), partial); err != nil {
				return err
			}
			return a.printAll(cmd, s)
		},
	}
}

func (a *app) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [JSON]",
		Short: "Replace the whole document (empty when JSON is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var with *meta.Document
			if len(args) == 1 {
				doc, err := parseObject(args[0])
				if err != nil {
					return err
				}
				with = doc
			}
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			if err := s.Reset(cmd.Context(), with); err != nil {
				return err
			}
			return a.printAll(cmd, s)
		},
	}
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of top-level keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.store(cmd)
			if err != nil {
				return err
			}
			n, err := s.Count(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(n)
		},
	}
}

func (a *app) provisionCmd() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Add a nullable metadata column to an existing SQL table",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			annotationNoTable: "true",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			added, err := record.Provision(cmd.Context(), a.cfg.Storage, table)
			if err != nil {
				return err
			}
			a.logger.Info("metadata column provisioned", "table", table, "added", added)
			return a.print(map[string]any{"table": table, "added": added})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "existing table to extend")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (a *app) printAll(cmd *cobra.Command, s *meta.Store) error {
	doc, err := s.All(cmd.Context())
	if err != nil {
		return err
	}
	return a.print(doc)
}

func parseJSON(raw string) (any, error) {
	return meta.ParseValue([]byte(raw))
}

func parseObject(raw string) (*meta.Document, error) {
	v, err := parseJSON(raw)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(*meta.Document)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", raw)
	}
	return doc, nil
}
