package main

import (
	"context"
	"fmt"

	"github.com/andreyvit/docdb"
	"github.com/andreyvit/docdb/localdb"
	"github.com/spf13/cobra"
)

var (
	kvNamespace string
	kvType      string
	kvOverflow  bool
	kvBytes     bool
	kvCheck     string

	kvCmd = &cobra.Command{
		Use:   "kv",
		Short: "Read and modify keys",
	}
	kvGetCmd = &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE:  runKVGet,
	}
	kvSetCmd = &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a numeric (--type) or byte (--bytes) value",
		Args:  cobra.ExactArgs(2),
		RunE:  runKVSet,
	}
	kvDelCmd = &cobra.Command{
		Use:     "del KEY",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		RunE:    runKVDel,
	}
	kvIncrCmd = &cobra.Command{
		Use:   "incr KEY [AMOUNT]",
		Short: "Add to a numeric key, saturating unless --overflow is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVAdd(cmd, args, false)
		},
	}
	kvDecrCmd = &cobra.Command{
		Use:   "decr KEY [AMOUNT]",
		Short: "Subtract from a numeric key, saturating unless --overflow is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKVAdd(cmd, args, true)
		},
	}
)

func init() {
	kvCmd.PersistentFlags().StringVarP(&kvNamespace, "namespace", "n", "", "key namespace")
	kvCmd.PersistentFlags().StringVarP(&kvType, "type", "t", "i64", "numeric type: i8..i64, u8..u64, f32 or f64")

	kvSetCmd.Flags().BoolVar(&kvBytes, "bytes", false, "store VALUE as bytes")
	kvSetCmd.Flags().StringVar(&kvCheck, "if", "always", "condition: always, present or vacant")
	kvIncrCmd.Flags().BoolVar(&kvOverflow, "overflow", false, "wrap around instead of saturating")
	kvDecrCmd.Flags().BoolVar(&kvOverflow, "overflow", false, "wrap around instead of saturating")

	kvCmd.AddCommand(kvGetCmd, kvSetCmd, kvDelCmd, kvIncrCmd, kvDecrCmd)
}

func printValue(cmd *cobra.Command, v *docdb.Value) {
	if v == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "(none)")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.String())
}

func parseKeyCheck(s string) (docdb.KeyCheck, error) {
	switch s {
	case "always", "":
		return docdb.Always, nil
	case "present":
		return docdb.OnlyIfPresent, nil
	case "vacant":
		return docdb.OnlyIfVacant, nil
	default:
		return 0, fmt.Errorf("invalid condition %q", s)
	}
}

func runKVGet(cmd *cobra.Command, args []string) error {
	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		v, err := docdb.GetKey(ctx, db, kvNamespace, args[0])
		if err != nil {
			return err
		}
		printValue(cmd, v)
		return nil
	})
}

func runKVSet(cmd *cobra.Command, args []string) error {
	check, err := parseKeyCheck(kvCheck)
	if err != nil {
		return err
	}
	var val docdb.Value
	if kvBytes {
		val = docdb.BytesValue([]byte(args[1]))
	} else {
		n, err := docdb.ParseNumeric(kvType, args[1])
		if err != nil {
			return err
		}
		val = docdb.NumericValue(n)
	}
	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		ok, err := docdb.SetKey(ctx, db, kvNamespace, args[0], val, check)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: not stored, condition %q failed", args[0], kvCheck)
		}
		return nil
	})
}

func runKVDel(cmd *cobra.Command, args []string) error {
	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		prev, err := docdb.TakeKey(ctx, db, kvNamespace, args[0])
		if err != nil {
			return err
		}
		printValue(cmd, prev)
		return nil
	})
}

func runKVAdd(cmd *cobra.Command, args []string, negate bool) error {
	amountStr := "1"
	if len(args) > 1 {
		amountStr = args[1]
	}
	amount, err := docdb.ParseNumeric(kvType, amountStr)
	if err != nil {
		return err
	}
	var command docdb.Command
	if negate {
		command = docdb.DecrementCommand{Amount: amount, Saturating: !kvOverflow}
	} else {
		command = docdb.IncrementCommand{Amount: amount, Saturating: !kvOverflow}
	}
	op := docdb.KeyOperation{Namespace: kvNamespace, Key: args[0], Command: command}

	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		out, err := db.ExecuteKeyOperation(ctx, op)
		if err != nil {
			return err
		}
		printValue(cmd, out.Value)
		return nil
	})
}
